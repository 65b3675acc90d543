package controller

import (
	"errors"

	"homehub-be/internal/dto"
	"homehub-be/internal/pkg/serverutils"
	"homehub-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IResearchController interface {
	RegisterRoutes(r fiber.Router)
	CreatePlan(ctx *fiber.Ctx) error
	StartRun(ctx *fiber.Ctx) error
	CancelRun(ctx *fiber.Ctx) error
	GetRunStatus(ctx *fiber.Ctx) error
	ListRunsForConversation(ctx *fiber.Ctx) error
	CreateTasksFromRun(ctx *fiber.Ctx) error
}

type researchController struct {
	service service.IResearchService
}

func NewResearchController(service service.IResearchService) IResearchController {
	return &researchController{service: service}
}

func (c *researchController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/research/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("plans", c.CreatePlan)
	h.Get("runs/:id", c.GetRunStatus)
	h.Post("runs/:id/start", c.StartRun)
	h.Post("runs/:id/cancel", c.CancelRun)
	h.Post("runs/:id/tasks", c.CreateTasksFromRun)
	h.Get("conversations/:conversationId/runs", c.ListRunsForConversation)
}

func (c *researchController) CreatePlan(ctx *fiber.Ctx) error {
	caller, err := identity(ctx)
	if err != nil {
		return err
	}

	var req dto.CreateResearchPlanRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.CreatePlan(ctx.UserContext(), caller, &req)
	if err != nil {
		return researchError(err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Research plan created", res))
}

func (c *researchController) StartRun(ctx *fiber.Ctx) error {
	caller, err := identity(ctx)
	if err != nil {
		return err
	}
	runId, err := uuidParam(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.StartRun(ctx.UserContext(), caller, runId)
	if err != nil {
		return researchError(err)
	}

	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Research started", res))
}

func (c *researchController) CancelRun(ctx *fiber.Ctx) error {
	caller, err := identity(ctx)
	if err != nil {
		return err
	}
	runId, err := uuidParam(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.CancelRun(ctx.UserContext(), caller, runId)
	if err != nil {
		return researchError(err)
	}

	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Research cancellation requested", res))
}

func (c *researchController) GetRunStatus(ctx *fiber.Ctx) error {
	caller, err := identity(ctx)
	if err != nil {
		return err
	}
	runId, err := uuidParam(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.GetRunStatus(ctx.UserContext(), caller, runId)
	if err != nil {
		return researchError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get research run", res))
}

func (c *researchController) ListRunsForConversation(ctx *fiber.Ctx) error {
	caller, err := identity(ctx)
	if err != nil {
		return err
	}
	conversationId, err := uuidParam(ctx, "conversationId")
	if err != nil {
		return err
	}

	res, err := c.service.ListRunsForConversation(ctx.UserContext(), caller, conversationId)
	if err != nil {
		return researchError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success list research runs", res))
}

func (c *researchController) CreateTasksFromRun(ctx *fiber.Ctx) error {
	caller, err := identity(ctx)
	if err != nil {
		return err
	}
	runId, err := uuidParam(ctx, "id")
	if err != nil {
		return err
	}

	var req dto.CreateTasksFromRunRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.CreateTasksFromRun(ctx.UserContext(), caller, runId, &req)
	if err != nil {
		return researchError(err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Tasks requested", res))
}

func identity(ctx *fiber.Ctx) (service.Caller, error) {
	userIdStr, _ := ctx.Locals("user_id").(string)
	userId, err := uuid.Parse(userIdStr)
	if err != nil {
		return service.Caller{}, fiber.NewError(fiber.StatusUnauthorized, "Invalid user")
	}
	// Tokens issued before households existed carry no household claim.
	householdIdStr, _ := ctx.Locals("household_id").(string)
	householdId, _ := uuid.Parse(householdIdStr)
	return service.Caller{UserId: userId, HouseholdId: householdId}, nil
}

func uuidParam(ctx *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "Invalid "+name)
	}
	return id, nil
}

func researchError(err error) error {
	switch {
	case errors.Is(err, service.ErrRunNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidRunState):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidResearchInput):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrTaskGatewayUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	return err
}
