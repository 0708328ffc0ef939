package client

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Action is the app-level action carried in a notification's "action" field.
type Action int

const (
	ActionA Action = iota + 1
	ActionB
)

var actionNames = map[string]Action{
	"action_a": ActionA,
	"action_b": ActionB,
}

// ParseAction maps an inbound action string. Unknown strings return false.
func ParseAction(s string) (Action, bool) {
	a, ok := actionNames[s]
	return a, ok
}

func (a Action) String() string {
	switch a {
	case ActionA:
		return "ActionA"
	case ActionB:
		return "ActionB"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// ActionHandler reacts to a triggered action.
type ActionHandler func(Action) error

// ActionService fans a triggered action out to every subscriber.
type ActionService struct {
	mu       sync.RWMutex
	handlers []ActionHandler
	logger   *slog.Logger
}

func NewActionService(logger *slog.Logger) *ActionService {
	return &ActionService{logger: logger.With("component", "ActionService")}
}

func (s *ActionService) Subscribe(h ActionHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// Trigger runs every handler for action, even when some fail, and returns
// their joined errors. Unknown actions are ignored.
func (s *ActionService) Trigger(action string) error {
	mapped, ok := ParseAction(action)
	if !ok {
		s.logger.Warn("Attempted to trigger unknown action, ignoring", "action", action)
		return nil
	}

	s.mu.RLock()
	handlers := append([]ActionHandler(nil), s.handlers...)
	s.mu.RUnlock()

	if len(handlers) == 0 {
		s.logger.Info("No subscribers found for action", "action", action)
		return nil
	}

	s.logger.Info("Triggering action", "action", action, "mapped", mapped.String())
	var errs []error
	for _, h := range handlers {
		if err := h(mapped); err != nil {
			s.logger.Error("Action handler failed", "action", action, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
