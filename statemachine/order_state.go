package statemachine

import (
	"strings"

	"food-ordering-api/apperr"
	"food-ordering-api/models"
)

// Transition is one allowed edge of the order lifecycle. Who may request it is
// decided by the policy package, not here.
type Transition struct {
	From models.OrderStatus `json:"from"`
	To   models.OrderStatus `json:"to"`
}

// validTransitions is the authoritative state machine definition
var validTransitions = []Transition{
	{From: models.StatusPending, To: models.StatusConfirmed},
	{From: models.StatusConfirmed, To: models.StatusPreparing},
	{From: models.StatusPreparing, To: models.StatusOutForDelivery},
	{From: models.StatusOutForDelivery, To: models.StatusDelivered},

	{From: models.StatusPending, To: models.StatusCancelled},
	{From: models.StatusConfirmed, To: models.StatusCancelled},
	{From: models.StatusPreparing, To: models.StatusCancelled},
	{From: models.StatusOutForDelivery, To: models.StatusCancelled},
}

type transitionKey struct {
	From models.OrderStatus
	To   models.OrderStatus
}

var transitionMap = func() map[transitionKey]bool {
	m := make(map[transitionKey]bool, len(validTransitions))
	for _, t := range validTransitions {
		m[transitionKey{t.From, t.To}] = true
	}
	return m
}()

// ValidTransitionsFrom returns all valid next states from a given state
func ValidTransitionsFrom(status models.OrderStatus) []models.OrderStatus {
	var nexts []models.OrderStatus
	for _, t := range validTransitions {
		if t.From == status {
			nexts = append(nexts, t.To)
		}
	}
	return nexts
}

// CanTransition checks the (from, to) pair against the table.
func CanTransition(from, to models.OrderStatus) error {
	if !to.Valid() {
		return apperr.Validation(apperr.Field("status", "Unknown order status '"+string(to)+"'"))
	}
	if transitionMap[transitionKey{From: from, To: to}] {
		return nil
	}
	return apperr.InvalidTransition(
		"cannot move order from " + string(from) + " to " + string(to) +
			"; valid transitions from " + string(from) + " are: " + describeValidFrom(from),
	)
}

func describeValidFrom(status models.OrderStatus) string {
	nexts := ValidTransitionsFrom(status)
	if len(nexts) == 0 {
		return "none (terminal state)"
	}
	names := make([]string, len(nexts))
	for i, s := range nexts {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

// GetAllTransitions returns the full state machine for documentation
func GetAllTransitions() []Transition {
	out := make([]Transition, len(validTransitions))
	copy(out, validTransitions)
	return out
}
