package workflow

import "pims/internal/workflow/models"

// transitions is the directed edge set of the workflow state machine.
// archived has no outgoing edges.
var transitions = map[models.Status]map[models.Status]bool{
	models.StatusSubmitted: {
		models.StatusAcknowledged: true,
		models.StatusPending:      true,
		models.StatusEscalated:    true,
	},
	models.StatusAcknowledged: {
		models.StatusPending:   true,
		models.StatusEscalated: true,
	},
	models.StatusPending: {
		models.StatusApproved:  true,
		models.StatusRejected:  true,
		models.StatusEscalated: true,
	},
	models.StatusApproved: {
		models.StatusArchived:  true,
		models.StatusEscalated: true,
	},
	models.StatusRejected: {
		models.StatusSubmitted: true,
		models.StatusEscalated: true,
	},
	models.StatusEscalated: {
		models.StatusPending:  true,
		models.StatusApproved: true,
		models.StatusArchived: true,
	},
}

// CanTransition reports whether from→to is an edge of the table.
func CanTransition(from, to models.Status) bool {
	return transitions[from][to]
}

// AllowedTargets lists the statuses reachable from from in a stable order.
func AllowedTargets(from models.Status) []models.Status {
	order := []models.Status{
		models.StatusSubmitted, models.StatusAcknowledged, models.StatusPending,
		models.StatusApproved, models.StatusRejected, models.StatusEscalated, models.StatusArchived,
	}
	var out []models.Status
	for _, s := range order {
		if transitions[from][s] {
			out = append(out, s)
		}
	}
	return out
}
