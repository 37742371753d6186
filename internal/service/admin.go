package service

import (
	"errors"

	"github.com/wb-go/wbf/ginext"

	"coursebook/internal/dto"
	"coursebook/internal/model"
	"coursebook/internal/repo"
	"coursebook/pkg/validator"
)

func (s *service) AdminCreateCourse(ctx *ginext.Context) {
	var req dto.CreateCourseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	course := &model.Course{
		Name:            req.Name,
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		Price:           req.Price,
		MaxParticipants: req.MaxParticipants,
		IsActive:        req.IsActive,
	}
	id, err := s.repo.CreateCourse(ctx, course)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create course")
		dto.InternalServerError(ctx)
		return
	}
	course.ID = id

	s.log.Info().Int64("course_id", id).Str("name", course.Name).Msg("course created")
	dto.SuccessCreatedResponse(ctx, course)
}

func (s *service) AdminUpdateCourse(ctx *ginext.Context) {
	id, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}
	var req dto.CreateCourseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	course, err := s.repo.GetCourseByID(ctx, id)
	if err != nil {
		s.respondRepoError(ctx, err)
		return
	}
	course.Name = req.Name
	course.Description = req.Description
	course.DurationMinutes = req.DurationMinutes
	course.Price = req.Price
	course.MaxParticipants = req.MaxParticipants
	course.IsActive = req.IsActive

	if err := s.repo.UpdateCourse(ctx, course); err != nil {
		s.respondRepoError(ctx, err)
		return
	}

	s.log.Info().Int64("course_id", id).Msg("course updated")
	dto.SuccessResponse(ctx, course)
}

func (s *service) AdminDeleteCourse(ctx *ginext.Context) {
	id, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}

	if err := s.repo.DeleteCourse(ctx, id); err != nil {
		if errors.Is(err, repo.ErrHasSessions) {
			dto.ConflictError(ctx, dto.HasSessions, "Course still has sessions")
			return
		}
		s.respondRepoError(ctx, err)
		return
	}

	s.log.Info().Int64("course_id", id).Msg("course deleted")
	dto.SuccessResponse(ctx, nil)
}

func (s *service) AdminListCourses(ctx *ginext.Context) {
	courses, err := s.repo.GetCourses(ctx, false)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list courses")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, courses)
}

func (s *service) AdminCreateSession(ctx *ginext.Context) {
	var req dto.CreateSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	course, err := s.repo.GetCourseByID(ctx, req.CourseID)
	if err != nil {
		s.respondRepoError(ctx, err)
		return
	}
	if !req.EndTime.After(req.StartTime) {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "end_time must be after start_time")
		return
	}
	if int(req.EndTime.Sub(req.StartTime).Minutes()) != course.DurationMinutes {
		dto.BadResponseError(ctx, dto.DurationMismatch, "Session length does not match the course duration")
		return
	}

	sess := &model.Session{
		CourseID:       req.CourseID,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		AvailableSpots: course.MaxParticipants,
		Status:         model.SessionScheduled,
	}
	id, err := s.repo.CreateSession(ctx, sess)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create session")
		dto.InternalServerError(ctx)
		return
	}
	sess.ID = id

	s.log.Info().Int64("session_id", id).Int64("course_id", req.CourseID).Msg("session created")
	dto.SuccessCreatedResponse(ctx, sessionToResponse(sess))
}

func (s *service) AdminUpdateSession(ctx *ginext.Context) {
	id, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}
	var req dto.UpdateSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	sess, err := s.repo.GetSessionByID(ctx, id)
	if err != nil {
		s.respondRepoError(ctx, err)
		return
	}
	course, err := s.repo.GetCourseByID(ctx, sess.CourseID)
	if err != nil {
		s.respondRepoError(ctx, err)
		return
	}
	if !req.EndTime.After(req.StartTime) {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "end_time must be after start_time")
		return
	}
	if int(req.EndTime.Sub(req.StartTime).Minutes()) != course.DurationMinutes {
		dto.BadResponseError(ctx, dto.DurationMismatch, "Session length does not match the course duration")
		return
	}

	sess.StartTime = req.StartTime
	sess.EndTime = req.EndTime
	sess.Status = req.Status

	if err := s.repo.UpdateSession(ctx, sess); err != nil {
		s.respondRepoError(ctx, err)
		return
	}

	s.log.Info().Int64("session_id", id).Str("status", sess.Status).Msg("session updated")
	dto.SuccessResponse(ctx, sessionToResponse(sess))
}

func (s *service) AdminDeleteSession(ctx *ginext.Context) {
	id, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}

	if err := s.repo.DeleteSession(ctx, id); err != nil {
		if errors.Is(err, repo.ErrHasRegistrations) {
			dto.ConflictError(ctx, dto.HasRegistrations, "Session has registrations")
			return
		}
		s.respondRepoError(ctx, err)
		return
	}

	s.log.Info().Int64("session_id", id).Msg("session deleted")
	dto.SuccessResponse(ctx, nil)
}

func (s *service) AdminSessionRegistrations(ctx *ginext.Context) {
	id, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}

	if _, err := s.repo.GetSessionByID(ctx, id); err != nil {
		s.respondRepoError(ctx, err)
		return
	}

	regs, err := s.repo.GetSessionRegistrations(ctx, id)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list session registrations")
		dto.InternalServerError(ctx)
		return
	}

	resp := make([]dto.RegistrationResponse, 0, len(regs))
	for i := range regs {
		resp = append(resp, registrationToResponse(&regs[i]))
	}
	dto.SuccessResponse(ctx, resp)
}

// AdminCancelRegistration cancels any user's registration, skipping the
// ownership check but keeping the status and timing rules.
func (s *service) AdminCancelRegistration(ctx *ginext.Context) {
	id, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}

	reg, err := s.repo.CancelRegistrationTx(ctx, callerID(ctx), id, s.now(), true)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrRegistrationNotFound):
			dto.NotFoundError(ctx, "Registration not found")
		case errors.Is(err, repo.ErrAlreadyCancelled):
			dto.ConflictError(ctx, dto.AlreadyCancelled, "Registration is already cancelled")
		case errors.Is(err, repo.ErrSessionPast):
			dto.BadResponseError(ctx, dto.AlreadyPast, "Session has already started")
		default:
			s.log.Error().Err(err).Msg("failed to cancel registration")
			dto.InternalServerError(ctx)
		}
		return
	}

	s.log.Info().Int64("registration_id", id).Msg("registration cancelled by admin")
	dto.SuccessResponse(ctx, registrationToResponse(reg))
}

func (s *service) AdminListUsers(ctx *ginext.Context) {
	users, err := s.repo.GetAllUsers(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list users")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, users)
}

// AdminToggleRole grants or revokes the admin role. Admins cannot change
// their own role.
func (s *service) AdminToggleRole(ctx *ginext.Context) {
	targetID := ctx.Param("id")
	if targetID == "" {
		dto.BadResponseError(ctx, dto.FieldBadFormat, "Invalid id parameter")
		return
	}
	if targetID == callerID(ctx) {
		dto.BadResponseError(ctx, dto.SelfModification, "You cannot change your own admin role")
		return
	}

	user, err := s.repo.GetUserByID(ctx, targetID)
	if err != nil {
		s.respondRepoError(ctx, err)
		return
	}

	var roles []string
	if user.HasRole(model.RoleAdmin) {
		for _, r := range user.Roles {
			if r != model.RoleAdmin {
				roles = append(roles, r)
			}
		}
	} else {
		roles = append(append([]string{}, user.Roles...), model.RoleAdmin)
	}

	if err := s.repo.SetUserRoles(ctx, targetID, roles); err != nil {
		s.respondRepoError(ctx, err)
		return
	}

	s.log.Info().Str("user_id", targetID).Strs("roles", roles).Msg("user roles updated")
	dto.SuccessResponse(ctx, dto.ToggleRoleResponse{
		UserID:  targetID,
		Roles:   roles,
		IsAdmin: !user.HasRole(model.RoleAdmin),
	})
}
