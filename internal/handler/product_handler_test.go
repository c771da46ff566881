package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go-seedvault/internal/model"
	"go-seedvault/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProducts implements service.ProductService for the endpoints under test.
type fakeProducts struct {
	service.ProductService
	place func(productID, slotID uuid.UUID, actor service.Actor, opts service.Options) (*service.PlacementResult, error)
	move  func(productID, slotID uuid.UUID, actor service.Actor, opts service.Options) (*service.PlacementResult, error)
}

func (f *fakeProducts) Place(_ context.Context, productID, slotID uuid.UUID, actor service.Actor, opts service.Options) (*service.PlacementResult, error) {
	return f.place(productID, slotID, actor, opts)
}

func (f *fakeProducts) Move(_ context.Context, productID, slotID uuid.UUID, actor service.Actor, opts service.Options) (*service.PlacementResult, error) {
	return f.move(productID, slotID, actor, opts)
}

const operatorID = "5f0c9a7e-3b1d-4c2a-9e8f-7a6b5c4d3e2f"

func newProductApp(products service.ProductService) *fiber.App {
	h := NewProductHandler(products, nil)
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", operatorID)
		c.Locals("user_name", "Olga")
		c.Locals("user_privileges", []string{"product:place", "product:move"})
		return c.Next()
	})
	app.Post("/products/:id/place", h.Place)
	app.Post("/products/:id/move", h.Move)
	return app
}

type response struct {
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
	Details json.RawMessage `json:"details"`
}

func post(t *testing.T, app *fiber.App, path, body string) (int, response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out response
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func TestProductHandler_Place(t *testing.T) {
	productID := uuid.New()
	slotID := uuid.New()

	var gotActor service.Actor
	var gotOpts service.Options
	app := newProductApp(&fakeProducts{
		place: func(p, s uuid.UUID, actor service.Actor, opts service.Options) (*service.PlacementResult, error) {
			require.Equal(t, productID, p)
			require.Equal(t, slotID, s)
			gotActor, gotOpts = actor, opts
			return &service.PlacementResult{Product: &model.Product{LotCode: "SOY-001", Status: model.StatusPlaced}}, nil
		},
	})

	status, body := post(t, app, "/products/"+productID.String()+"/place",
		`{"slot_id":"`+slotID.String()+`","expected_version":3,"force":true,"notes":"dock 2"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Product placed", body.Message)
	assert.Contains(t, string(body.Data), "SOY-001")

	assert.Equal(t, operatorID, gotActor.ID.String())
	assert.Equal(t, "Olga", gotActor.Name)
	assert.True(t, gotActor.Can("product:place"))
	require.NotNil(t, gotOpts.ExpectedVersion)
	assert.Equal(t, int64(3), *gotOpts.ExpectedVersion)
	assert.True(t, gotOpts.Force)
	assert.Equal(t, "dock 2", gotOpts.Notes)
}

func TestProductHandler_PlaceErrors(t *testing.T) {
	slotID := uuid.New()
	occupant := &service.OccupantSummary{ProductID: uuid.New(), LotCode: "CORN-7", TotalWeight: 400, Status: model.StatusPlaced}

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{"occupied", &service.SlotOccupiedError{SlotID: slotID, Occupant: occupant}, http.StatusConflict, "SLOT_OCCUPIED"},
		{"capacity", &service.InsufficientCapacityError{SlotID: slotID, Required: 1001, Available: 1000, Deficit: 1}, http.StatusUnprocessableEntity, "INSUFFICIENT_CAPACITY"},
		{"stale", &service.ConcurrentModificationError{Entity: "product", Expected: 2}, http.StatusConflict, "CONCURRENT_MODIFICATION"},
		{"transition", &service.InvalidTransitionError{Entity: "product", From: "WITHDRAWN", Action: "place"}, http.StatusConflict, "INVALID_TRANSITION"},
		{"missing slot", service.ErrSlotNotFound, http.StatusNotFound, "SLOT_NOT_FOUND"},
		{"forbidden", service.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{"internal", errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newProductApp(&fakeProducts{
				place: func(uuid.UUID, uuid.UUID, service.Actor, service.Options) (*service.PlacementResult, error) {
					return nil, tt.err
				},
			})
			status, body := post(t, app, "/products/"+uuid.NewString()+"/place", `{"slot_id":"`+slotID.String()+`"}`)
			assert.Equal(t, tt.expectedStatus, status)
			assert.Equal(t, tt.expectedCode, body.Code)
			if tt.expectedStatus == http.StatusInternalServerError {
				assert.Equal(t, "Internal server error", body.Error)
			}
		})
	}
}

func TestProductHandler_ErrorDetails(t *testing.T) {
	slotID := uuid.New()
	alt := uuid.New()
	app := newProductApp(&fakeProducts{
		place: func(uuid.UUID, uuid.UUID, service.Actor, service.Options) (*service.PlacementResult, error) {
			return nil, &service.InsufficientCapacityError{
				SlotID: slotID, Required: 1001, Available: 1000, Deficit: 1,
				Alternatives: []service.SlotSuggestion{{SlotID: alt, MaxCapacity: 1500}},
			}
		},
	})

	status, body := post(t, app, "/products/"+uuid.NewString()+"/place", `{"slot_id":"`+slotID.String()+`"}`)
	require.Equal(t, http.StatusUnprocessableEntity, status)

	var details service.InsufficientCapacityError
	require.NoError(t, json.Unmarshal(body.Details, &details))
	assert.Equal(t, 1.0, details.Deficit)
	require.Len(t, details.Alternatives, 1)
	assert.Equal(t, alt, details.Alternatives[0].SlotID)
}

func TestProductHandler_BadInput(t *testing.T) {
	app := newProductApp(&fakeProducts{})

	status, body := post(t, app, "/products/not-a-uuid/place", `{}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", body.Code)

	status, body = post(t, app, "/products/"+uuid.NewString()+"/place", `{"slot_id":`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body.Error, "invalid JSON body")
}

func TestProductHandler_MoveSameLocation(t *testing.T) {
	app := newProductApp(&fakeProducts{
		move: func(uuid.UUID, uuid.UUID, service.Actor, service.Options) (*service.PlacementResult, error) {
			return &service.PlacementResult{Product: &model.Product{}, SameLocation: true}, nil
		},
	})

	status, body := post(t, app, "/products/"+uuid.NewString()+"/move", `{"slot_id":"`+uuid.NewString()+`"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Product already in this slot", body.Message)
}
