package service_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursebook/internal/dto"
	"coursebook/internal/model"
)

func TestGetCourses(t *testing.T) {
	env := newTestEnv(t)
	env.addCourse(25, 60, 10, true)
	env.addCourse(30, 90, 8, false)

	w := performRequest(env.router, http.MethodGet, "/v1/courses", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var courses []model.Course
	decodeData(t, w, &courses)
	require.Len(t, courses, 1)
	assert.True(t, courses[0].IsActive)
}

func TestGetCourse(t *testing.T) {
	env := newTestEnv(t)
	activeID := env.addCourse(25, 60, 10, true)
	inactiveID := env.addCourse(30, 90, 8, false)

	w := performRequest(env.router, http.MethodGet, fmt.Sprintf("/v1/courses/%d", activeID), nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	// Inactive courses are hidden from the public catalog
	w = performRequest(env.router, http.MethodGet, fmt.Sprintf("/v1/courses/%d", inactiveID), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = performRequest(env.router, http.MethodGet, "/v1/courses/9999", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = performRequest(env.router, http.MethodGet, "/v1/courses/abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSessions(t *testing.T) {
	env := newTestEnv(t)
	yogaID := env.addCourse(25, 60, 10, true)
	pilatesID := env.addCourse(30, 60, 8, true)

	tomorrow := time.Now().Add(24 * time.Hour)
	nextWeek := time.Now().Add(7 * 24 * time.Hour)
	env.addSession(yogaID, tomorrow, time.Hour, 10)
	env.addSession(pilatesID, nextWeek, time.Hour, 8)
	// Past sessions never appear
	env.addSession(yogaID, time.Now().Add(-time.Hour), time.Hour, 10)

	w := performRequest(env.router, http.MethodGet, "/v1/sessions", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var sessions []dto.SessionResponse
	decodeData(t, w, &sessions)
	assert.Len(t, sessions, 2)

	w = performRequest(env.router, http.MethodGet, fmt.Sprintf("/v1/sessions?course_id=%d", yogaID), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &sessions)
	require.Len(t, sessions, 1)
	assert.Equal(t, yogaID, sessions[0].CourseID)

	day := tomorrow.UTC().Format("2006-01-02")
	w = performRequest(env.router, http.MethodGet, "/v1/sessions?date="+day, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &sessions)
	assert.Len(t, sessions, 1)

	w = performRequest(env.router, http.MethodGet, "/v1/sessions?date=13-05-2026", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
