package service

import (
	"strconv"
	"time"

	"github.com/wb-go/wbf/ginext"

	"coursebook/internal/dto"
	"coursebook/internal/model"
)

func parseIDParam(ctx *ginext.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id <= 0 {
		dto.BadResponseError(ctx, dto.FieldBadFormat, "Invalid "+name+" parameter")
		return 0, false
	}
	return id, true
}

func (s *service) GetCourses(ctx *ginext.Context) {
	courses, err := s.repo.GetCourses(ctx, true)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list courses")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, courses)
}

func (s *service) GetCourse(ctx *ginext.Context) {
	id, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}

	course, err := s.repo.GetCourseByID(ctx, id)
	if err != nil {
		s.respondRepoError(ctx, err)
		return
	}
	if !course.IsActive {
		dto.NotFoundError(ctx, "Course not found")
		return
	}
	dto.SuccessResponse(ctx, course)
}

// GetSessions lists upcoming scheduled sessions, optionally filtered by
// course_id and by a single day (YYYY-MM-DD, interpreted in the studio's
// timezone).
func (s *service) GetSessions(ctx *ginext.Context) {
	var courseID int64
	if raw := ctx.Query("course_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			dto.BadResponseError(ctx, dto.FieldBadFormat, "Invalid course_id parameter")
			return
		}
		courseID = id
	}

	var day *time.Time
	if raw := ctx.Query("date"); raw != "" {
		d, err := time.ParseInLocation("2006-01-02", raw, s.cfg.Location)
		if err != nil {
			dto.BadResponseError(ctx, dto.FieldBadFormat, "Invalid date parameter, expected YYYY-MM-DD")
			return
		}
		day = &d
	}

	sessions, err := s.repo.GetUpcomingSessions(ctx, courseID, day, s.now())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list sessions")
		dto.InternalServerError(ctx)
		return
	}

	resp := make([]dto.SessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		resp = append(resp, sessionToResponse(&sess))
	}
	dto.SuccessResponse(ctx, resp)
}

func sessionToResponse(sess *model.Session) dto.SessionResponse {
	return dto.SessionResponse{
		ID:             sess.ID,
		CourseID:       sess.CourseID,
		StartTime:      sess.StartTime,
		EndTime:        sess.EndTime,
		AvailableSpots: sess.AvailableSpots,
		Status:         sess.Status,
	}
}
