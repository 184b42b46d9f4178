package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Yonad91/vital-events-sub002/internal/domain"
	"github.com/Yonad91/vital-events-sub002/internal/platform/textutil"
	"github.com/Yonad91/vital-events-sub002/internal/repositories"
)

var (
	// ErrPrefillInvalidInput signals a malformed prefill request.
	ErrPrefillInvalidInput = errors.New("prefill: invalid input")
	// ErrPrefillSourceNotFound indicates the source event does not exist.
	ErrPrefillSourceNotFound = errors.New("prefill: source event not found")
)

// PrefillServiceDeps bundles collaborators required to construct the prefill service.
type PrefillServiceDeps struct {
	Events repositories.EventRepository
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type prefillService struct {
	events repositories.EventRepository
	logger func(context.Context, string, map[string]any)
}

// NewPrefillService wires dependencies into a concrete PrefillService implementation.
func NewPrefillService(deps PrefillServiceDeps) (PrefillService, error) {
	if deps.Events == nil {
		return nil, errors.New("prefill service: event repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &prefillService{events: deps.Events, logger: logger}, nil
}

// Prefill derives the patch for cmd.Target from the source event and merges it into cmd.Form
// without overwriting populated keys. Business-rule conflicts come back in the result.
func (s *prefillService) Prefill(ctx context.Context, cmd PrefillCommand) (AutofillResult, error) {
	target := PrefillTarget(strings.ToLower(strings.TrimSpace(string(cmd.Target))))
	switch target {
	case PrefillTargetMarriage, PrefillTargetDeath, PrefillTargetDivorce:
	default:
		return AutofillResult{}, fmt.Errorf("%w: unknown target %q", ErrPrefillInvalidInput, cmd.Target)
	}
	sourceID := strings.TrimSpace(cmd.SourceEventID)
	if sourceID == "" {
		return AutofillResult{}, fmt.Errorf("%w: sourceEventId is required", ErrPrefillInvalidInput)
	}

	event, err := s.events.FindByID(ctx, sourceID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return AutofillResult{}, fmt.Errorf("%w: %v", ErrPrefillSourceNotFound, err)
		}
		return AutofillResult{}, fmt.Errorf("prefill: load source event: %w", err)
	}

	cmd.Form = textutil.NormalizeFields(cmd.Form)
	result, err := derivePrefill(target, event, cmd)
	if err != nil {
		return AutofillResult{}, err
	}

	if result.Patch == nil {
		result.Patch = map[string]any{}
	}
	if result.ShouldAutofill {
		result.Merged = MergePrefill(cmd.Form, result.Patch)
	} else {
		result.Merged = MergePrefill(cmd.Form, nil)
	}

	fields := map[string]any{
		"target":        string(target),
		"sourceEventId": event.ID,
		"sourceType":    string(event.Type),
		"role":          result.Role,
		"keys":          len(result.Patch),
	}
	if result.Error != "" {
		fields["reason"] = result.Error
		s.logger(ctx, "prefill.conflict", fields)
	} else {
		s.logger(ctx, "prefill.resolved", fields)
	}
	return result, nil
}

func derivePrefill(target PrefillTarget, event domain.Event, cmd PrefillCommand) (AutofillResult, error) {
	mismatch := func() (AutofillResult, error) {
		return AutofillResult{}, fmt.Errorf("%w: a %s record cannot fill a %s form", ErrPrefillInvalidInput, event.Type, target)
	}
	requireID := func() error {
		if strings.TrimSpace(cmd.IDNumber) == "" {
			return fmt.Errorf("%w: idNumber is required for a marriage source", ErrPrefillInvalidInput)
		}
		return nil
	}

	switch target {
	case PrefillTargetMarriage:
		if event.Type != domain.EventTypeBirth {
			return mismatch()
		}
		return MarriagePrefillFromBirth(event, strings.ToLower(strings.TrimSpace(cmd.Role))), nil
	case PrefillTargetDeath:
		switch event.Type {
		case domain.EventTypeBirth:
			return DeathPrefillFromBirth(event), nil
		case domain.EventTypeMarriage:
			if err := requireID(); err != nil {
				return AutofillResult{}, err
			}
			return DeathPrefillFromMarriage(event, cmd.IDNumber), nil
		}
		return mismatch()
	case PrefillTargetDivorce:
		if event.Type != domain.EventTypeMarriage {
			return mismatch()
		}
		if err := requireID(); err != nil {
			return AutofillResult{}, err
		}
		return DivorcePrefillFromMarriage(event, cmd.IDNumber, cmd.SpouseSlot, cmd.Form), nil
	}
	return mismatch()
}
