package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"
	"golang.org/x/crypto/bcrypt"

	"coursebook/internal/api/api"
	"coursebook/internal/dto"
	"coursebook/internal/gateway"
	"coursebook/internal/model"
	"coursebook/internal/repo"
	"coursebook/internal/service"
)

var testJWTSecret = []byte("test-secret")

// fakeRepo is an in-memory Repository that mirrors the transactional
// semantics of the postgres implementation: capacity and duplicate checks
// before mutation, idempotent payment confirmation keyed by external id.
type fakeRepo struct {
	mu sync.Mutex

	courses       map[int64]*model.Course
	sessions      map[int64]*model.Session
	registrations map[int64]*model.Registration
	books         map[int64]*model.SessionBook
	payments      map[int64]*model.Payment
	users         map[string]*model.User
	outbox        []model.OutboxMessage

	nextCourseID       int64
	nextSessionID      int64
	nextRegistrationID int64
	nextBookID         int64
	nextPaymentID      int64
	nextOutboxID       int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		courses:       make(map[int64]*model.Course),
		sessions:      make(map[int64]*model.Session),
		registrations: make(map[int64]*model.Registration),
		books:         make(map[int64]*model.SessionBook),
		payments:      make(map[int64]*model.Payment),
		users:         make(map[string]*model.User),
	}
}

func (f *fakeRepo) CreateCourse(_ context.Context, c *model.Course) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextCourseID++
	cp := *c
	cp.ID = f.nextCourseID
	cp.CreatedAt = time.Now()
	f.courses[cp.ID] = &cp
	return cp.ID, nil
}

func (f *fakeRepo) UpdateCourse(_ context.Context, c *model.Course) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.courses[c.ID]; !ok {
		return repo.ErrCourseNotFound
	}
	cp := *c
	f.courses[c.ID] = &cp
	return nil
}

func (f *fakeRepo) DeleteCourse(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.courses[id]; !ok {
		return repo.ErrCourseNotFound
	}
	for _, s := range f.sessions {
		if s.CourseID == id {
			return repo.ErrHasSessions
		}
	}
	delete(f.courses, id)
	return nil
}

func (f *fakeRepo) GetCourseByID(_ context.Context, id int64) (*model.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.courses[id]
	if !ok {
		return nil, repo.ErrCourseNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeRepo) GetCourses(_ context.Context, onlyActive bool) ([]model.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Course
	for _, c := range f.courses {
		if onlyActive && !c.IsActive {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) CreateSession(_ context.Context, s *model.Session) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSessionID++
	cp := *s
	cp.ID = f.nextSessionID
	cp.CreatedAt = time.Now()
	f.sessions[cp.ID] = &cp
	return cp.ID, nil
}

func (f *fakeRepo) UpdateSession(_ context.Context, s *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[s.ID]; !ok {
		return repo.ErrSessionNotFound
	}
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeRepo) DeleteSession(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return repo.ErrSessionNotFound
	}
	for _, r := range f.registrations {
		if r.SessionID == id {
			return repo.ErrHasRegistrations
		}
	}
	delete(f.sessions, id)
	return nil
}

func (f *fakeRepo) GetSessionByID(_ context.Context, id int64) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, repo.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeRepo) GetUpcomingSessions(_ context.Context, courseID int64, day *time.Time, now time.Time) ([]model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Session
	for _, s := range f.sessions {
		if s.Status != model.SessionScheduled || !s.StartTime.After(now) {
			continue
		}
		if courseID != 0 && s.CourseID != courseID {
			continue
		}
		if day != nil {
			dayEnd := day.AddDate(0, 0, 1)
			if s.StartTime.Before(*day) || !s.StartTime.Before(dayEnd) {
				continue
			}
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (f *fakeRepo) enqueueNotice(queue string, msg any) {
	body, _ := json.Marshal(msg)
	f.nextOutboxID++
	f.outbox = append(f.outbox, model.OutboxMessage{
		ID:        f.nextOutboxID,
		QueueName: queue,
		Body:      body,
		CreatedAt: time.Now(),
	})
}

func (f *fakeRepo) ReserveWithCreditTx(_ context.Context, userID string, sessionID int64, now time.Time) (*repo.ReserveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sess, ok := f.sessions[sessionID]
	if !ok {
		return nil, repo.ErrSessionNotFound
	}
	if sess.AvailableSpots <= 0 {
		return nil, repo.ErrNoCapacity
	}
	for _, r := range f.registrations {
		if r.UserID == userID && r.SessionID == sessionID && r.Status == model.RegistrationConfirmed {
			return nil, repo.ErrDuplicateRegistration
		}
	}

	var book *model.SessionBook
	for _, b := range f.books {
		if b.UserID != userID || b.RemainingSessions <= 0 || !b.ExpiresAt.After(now) {
			continue
		}
		if book == nil || b.ExpiresAt.Before(book.ExpiresAt) {
			book = b
		}
	}
	if book == nil {
		return nil, repo.ErrNoUsableBook
	}

	book.RemainingSessions--
	sess.AvailableSpots--
	f.nextRegistrationID++
	reg := &model.Registration{
		ID:            f.nextRegistrationID,
		UserID:        userID,
		SessionID:     sessionID,
		SessionBookID: &book.ID,
		Status:        model.RegistrationConfirmed,
		RegisteredAt:  now,
	}
	f.registrations[reg.ID] = reg
	f.enqueueNotice(dto.QueueBookingNotices, dto.BookingNoticeMessage{
		Kind: dto.NoticeReserved, UserID: userID, RegistrationID: reg.ID, SessionID: sessionID,
	})

	regCp := *reg
	bookCp := *book
	return &repo.ReserveResult{Registration: &regCp, Book: &bookCp}, nil
}

func (f *fakeRepo) CancelRegistrationTx(_ context.Context, userID string, registrationID int64, now time.Time, asAdmin bool) (*model.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	reg, ok := f.registrations[registrationID]
	if !ok {
		return nil, repo.ErrRegistrationNotFound
	}
	if !asAdmin && reg.UserID != userID {
		return nil, repo.ErrForbidden
	}
	if reg.Status != model.RegistrationConfirmed {
		return nil, repo.ErrAlreadyCancelled
	}
	sess := f.sessions[reg.SessionID]
	if !sess.StartTime.After(now) {
		return nil, repo.ErrSessionPast
	}

	reg.Status = model.RegistrationCancelled
	reg.CancelledAt = &now
	sess.AvailableSpots++
	if reg.SessionBookID != nil {
		if b, ok := f.books[*reg.SessionBookID]; ok {
			b.RemainingSessions++
		}
	}
	f.enqueueNotice(dto.QueueBookingNotices, dto.BookingNoticeMessage{
		Kind: dto.NoticeCancelled, UserID: reg.UserID, RegistrationID: reg.ID, SessionID: reg.SessionID,
	})

	cp := *reg
	return &cp, nil
}

func (f *fakeRepo) GetRegistrationByID(_ context.Context, id int64) (*model.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.registrations[id]
	if !ok {
		return nil, repo.ErrRegistrationNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRepo) GetUserRegistrations(_ context.Context, userID string) ([]model.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Registration
	for _, r := range f.registrations {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) GetSessionRegistrations(_ context.Context, sessionID int64) ([]model.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Registration
	for _, r := range f.registrations {
		if r.SessionID == sessionID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) GetPaymentByExternalID(_ context.Context, externalID string) (*model.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.ExternalPaymentID == externalID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) ConfirmSessionPaymentTx(_ context.Context, userID string, sessionID int64, amount float64, externalID string, now time.Time) (*repo.ConfirmResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, p := range f.payments {
		if p.ExternalPaymentID == externalID {
			return nil, repo.ErrPaymentProcessed
		}
	}
	sess, ok := f.sessions[sessionID]
	if !ok {
		return nil, repo.ErrSessionNotFound
	}
	if sess.AvailableSpots <= 0 {
		return nil, repo.ErrNoCapacity
	}
	for _, r := range f.registrations {
		if r.UserID == userID && r.SessionID == sessionID && r.Status == model.RegistrationConfirmed {
			return nil, repo.ErrDuplicateRegistration
		}
	}

	f.nextRegistrationID++
	reg := &model.Registration{
		ID:           f.nextRegistrationID,
		UserID:       userID,
		SessionID:    sessionID,
		Status:       model.RegistrationConfirmed,
		RegisteredAt: now,
	}
	f.registrations[reg.ID] = reg

	f.nextPaymentID++
	pay := &model.Payment{
		ID:                f.nextPaymentID,
		UserID:            userID,
		Amount:            amount,
		ExternalPaymentID: externalID,
		RegistrationID:    &reg.ID,
		CreatedAt:         now,
	}
	f.payments[pay.ID] = pay
	sess.AvailableSpots--
	f.enqueueNotice(dto.QueueBookingNotices, dto.BookingNoticeMessage{
		Kind: dto.NoticePaymentConfirmed, UserID: userID, RegistrationID: reg.ID, SessionID: sessionID,
	})

	regCp := *reg
	payCp := *pay
	return &repo.ConfirmResult{Registration: &regCp, Payment: &payCp}, nil
}

func (f *fakeRepo) ConfirmCreditPurchaseTx(_ context.Context, userID, bookName string, totalSessions int, price float64, externalID string, now time.Time) (*repo.ConfirmResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, p := range f.payments {
		if p.ExternalPaymentID == externalID {
			return nil, repo.ErrPaymentProcessed
		}
	}

	f.nextBookID++
	book := &model.SessionBook{
		ID:                f.nextBookID,
		UserID:            userID,
		Name:              bookName,
		TotalSessions:     totalSessions,
		RemainingSessions: totalSessions,
		Price:             price,
		CreatedAt:         now,
		ExpiresAt:         now.AddDate(1, 0, 0),
	}
	f.books[book.ID] = book

	f.nextPaymentID++
	pay := &model.Payment{
		ID:                f.nextPaymentID,
		UserID:            userID,
		Amount:            price,
		ExternalPaymentID: externalID,
		SessionBookID:     &book.ID,
		CreatedAt:         now,
	}
	f.payments[pay.ID] = pay
	f.enqueueNotice(dto.QueueBookingNotices, dto.BookingNoticeMessage{
		Kind: dto.NoticeBookPurchased, UserID: userID, SessionBookID: book.ID,
	})

	bookCp := *book
	payCp := *pay
	return &repo.ConfirmResult{Book: &bookCp, Payment: &payCp}, nil
}

func (f *fakeRepo) GetUserPayments(_ context.Context, userID string) ([]model.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Payment
	for _, p := range f.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) GetUserSessionBooks(_ context.Context, userID string) ([]model.SessionBook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.SessionBook
	for _, b := range f.books {
		if b.UserID == userID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) CreateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return repo.ErrEmailTaken
		}
	}
	cp := *u
	cp.CreatedAt = time.Now()
	f.users[cp.ID] = &cp
	u.CreatedAt = cp.CreatedAt
	return nil
}

func (f *fakeRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repo.ErrUserNotFound
}

func (f *fakeRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repo.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeRepo) GetAllUsers(_ context.Context) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.User
	for _, u := range f.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) SetUserRoles(_ context.Context, userID string, roles []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return repo.ErrUserNotFound
	}
	u.Roles = roles
	return nil
}

func (f *fakeRepo) FetchUndispatched(_ context.Context, limit int) ([]model.OutboxMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.OutboxMessage
	for _, m := range f.outbox {
		if m.DispatchedAt == nil {
			out = append(out, m)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) MarkDispatched(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.outbox {
		if f.outbox[i].ID == id && f.outbox[i].DispatchedAt == nil {
			now := time.Now()
			f.outbox[i].DispatchedAt = &now
			return nil
		}
	}
	return fmt.Errorf("outbox message %d not found or already dispatched", id)
}

func (f *fakeRepo) MigrateUp(string) error   { return nil }
func (f *fakeRepo) MigrateDown(string) error { return nil }

// fakeCheckout returns canned intents and statuses keyed by checkout id.
type fakeCheckout struct {
	mu       sync.Mutex
	created  []gateway.CreateParams
	statuses map[string]gateway.Status
	getErr   error
}

func newFakeCheckout() *fakeCheckout {
	return &fakeCheckout{statuses: make(map[string]gateway.Status)}
}

func (f *fakeCheckout) CreateCheckout(_ context.Context, p gateway.CreateParams) (*gateway.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, p)
	id := fmt.Sprintf("cs_test_%d", len(f.created))
	return &gateway.Intent{ID: id, URL: "https://checkout.example.com/" + id}, nil
}

func (f *fakeCheckout) GetCheckout(_ context.Context, id string) (*gateway.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	st, ok := f.statuses[id]
	if !ok {
		return &gateway.Status{ID: id, Paid: false}, nil
	}
	return &st, nil
}

func (f *fakeCheckout) setPaid(id string, amountCents int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = gateway.Status{ID: id, Paid: true, AmountCents: amountCents}
}

type testEnv struct {
	repo     *fakeRepo
	checkout *fakeCheckout
	router   *ginext.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	zlog.Init()

	fr := newFakeRepo()
	fc := newFakeCheckout()
	svc := service.NewService(fr, &zlog.Logger, fc, service.Config{
		BaseURL:   "http://localhost:8080",
		Currency:  "eur",
		Location:  time.UTC,
		JWTSecret: testJWTSecret,
		TokenTTL:  time.Hour,
	})
	router := api.NewRouters(&api.Routers{Service: svc, JWTSecret: testJWTSecret})
	return &testEnv{repo: fr, checkout: fc, router: router}
}

// addUser seeds a user with password "password123" and returns a valid token.
func (e *testEnv) addUser(t *testing.T, id, email string, roles ...string) string {
	t.Helper()
	if len(roles) == 0 {
		roles = []string{model.RoleUser}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	e.repo.users[id] = &model.User{
		ID:           id,
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    "Test",
		LastName:     "User",
		Roles:        roles,
		CreatedAt:    time.Now(),
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   id,
		"roles": roles,
		"exp":   now.Add(time.Hour).Unix(),
		"iat":   now.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testJWTSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func (e *testEnv) addCourse(price float64, duration, maxParticipants int, active bool) int64 {
	e.repo.nextCourseID++
	id := e.repo.nextCourseID
	e.repo.courses[id] = &model.Course{
		ID:              id,
		Name:            fmt.Sprintf("Course %d", id),
		DurationMinutes: duration,
		Price:           price,
		MaxParticipants: maxParticipants,
		IsActive:        active,
		CreatedAt:       time.Now(),
	}
	return id
}

func (e *testEnv) addSession(courseID int64, start time.Time, duration time.Duration, spots int) int64 {
	e.repo.nextSessionID++
	id := e.repo.nextSessionID
	e.repo.sessions[id] = &model.Session{
		ID:             id,
		CourseID:       courseID,
		StartTime:      start,
		EndTime:        start.Add(duration),
		AvailableSpots: spots,
		Status:         model.SessionScheduled,
		CreatedAt:      time.Now(),
	}
	return id
}

func (e *testEnv) addBook(userID string, remaining int, expiresAt time.Time) int64 {
	e.repo.nextBookID++
	id := e.repo.nextBookID
	e.repo.books[id] = &model.SessionBook{
		ID:                id,
		UserID:            userID,
		Name:              "10-session book",
		TotalSessions:     10,
		RemainingSessions: remaining,
		Price:             200,
		CreatedAt:         time.Now(),
		ExpiresAt:         expiresAt,
	}
	return id
}

func performRequest(router *ginext.Engine, method, path string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Status string `json:"status"`
	Error  *struct {
		Code string `json:"code"`
		Desc string `json:"desc"`
	} `json:"error"`
	Data json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return env
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	env := decodeEnvelope(t, w)
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("decode data %q: %v", string(env.Data), err)
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	env := decodeEnvelope(t, w)
	if env.Error == nil {
		t.Fatalf("expected error in response %q", w.Body.String())
	}
	return env.Error.Code
}
