package statemachine

import (
	"errors"
	"testing"

	"food-ordering-api/apperr"
	"food-ordering-api/models"
)

func TestCanTransitionFollowsOnlyDrawnEdges(t *testing.T) {
	allowed := map[[2]models.OrderStatus]bool{
		{models.StatusPending, models.StatusConfirmed}:        true,
		{models.StatusConfirmed, models.StatusPreparing}:      true,
		{models.StatusPreparing, models.StatusOutForDelivery}: true,
		{models.StatusOutForDelivery, models.StatusDelivered}: true,
		{models.StatusPending, models.StatusCancelled}:        true,
		{models.StatusConfirmed, models.StatusCancelled}:      true,
		{models.StatusPreparing, models.StatusCancelled}:      true,
		{models.StatusOutForDelivery, models.StatusCancelled}: true,
	}

	for _, from := range models.OrderStatuses {
		for _, to := range models.OrderStatuses {
			err := CanTransition(from, to)
			if allowed[[2]models.OrderStatus{from, to}] {
				if err != nil {
					t.Errorf("%s -> %s should be allowed, got %v", from, to, err)
				}
				continue
			}
			if !errors.Is(err, apperr.ErrInvalidTransition) {
				t.Errorf("%s -> %s should be an invalid transition, got %v", from, to, err)
			}
		}
	}
}

func TestCanTransitionRejectsUnknownStatus(t *testing.T) {
	err := CanTransition(models.StatusPending, "Teleported")
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, s := range []models.OrderStatus{models.StatusDelivered, models.StatusCancelled} {
		if got := ValidTransitionsFrom(s); len(got) != 0 {
			t.Errorf("%s should be terminal, has exits %v", s, got)
		}
		if !s.Terminal() {
			t.Errorf("%s should report Terminal()", s)
		}
	}
}

func TestGetAllTransitionsReturnsCopy(t *testing.T) {
	all := GetAllTransitions()
	all[0].To = models.StatusDelivered
	if err := CanTransition(models.StatusPending, models.StatusDelivered); err == nil {
		t.Fatalf("mutating the returned slice must not change the table")
	}
}
