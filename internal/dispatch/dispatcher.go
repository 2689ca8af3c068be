// Package dispatch composes classification, parameter extraction and the
// handler registry into a single request path.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskagent/internal/logging"
	"taskagent/internal/perception"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Stage is the furthest point a request reached.
type Stage int

const (
	StageUnclassified Stage = iota
	StageClassified
	StageParametersBound
	StageInvoked
	StageRejected
)

func (s Stage) String() string {
	switch s {
	case StageUnclassified:
		return "unclassified"
	case StageClassified:
		return "classified"
	case StageParametersBound:
		return "parameters_bound"
	case StageInvoked:
		return "invoked"
	case StageRejected:
		return "rejected"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Result describes one dispatched request.
type Result struct {
	RequestID string
	Intent    perception.TaskIntent
	Params    perception.Bundle
	Stage     Stage
	Status    string
	Fired     []perception.Term
	Duration  time.Duration
}

// Dispatcher routes task text to its handler.
type Dispatcher struct {
	classifier *perception.Classifier
	extractor  *perception.Extractor
	registry   *Registry
}

// New creates a dispatcher.
func New(classifier *perception.Classifier, extractor *perception.Extractor, registry *Registry) *Dispatcher {
	if classifier == nil {
		classifier = perception.Default()
	}
	return &Dispatcher{classifier: classifier, extractor: extractor, registry: registry}
}

// Registry returns the handler registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Plan classifies and binds parameters without invoking the handler.
func (d *Dispatcher) Plan(text string) (*Result, error) {
	res := &Result{RequestID: uuid.NewString()}
	return res, d.prepare(text, res)
}

// Dispatch runs the full request path and returns the handler's status
// message verbatim. Failures are *UnexpectedError, *HandlerError,
// *MissingParameterError or ErrUnrecognizedTask.
func (d *Dispatcher) Dispatch(ctx context.Context, text string) (*Result, error) {
	start := time.Now()
	res := &Result{RequestID: uuid.NewString()}

	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditTaskReceived,
		RequestID: res.RequestID,
		Stage:     res.Stage.String(),
		Success:   true,
	})

	if err := d.prepare(text, res); err != nil {
		res.Duration = time.Since(start)
		return res, err
	}

	status, err := d.invoke(ctx, res)
	res.Duration = time.Since(start)
	if err != nil {
		res.Stage = StageRejected
		d.auditRejection(res, err)
		return res, err
	}

	res.Stage = StageInvoked
	res.Status = status
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditHandlerComplete,
		RequestID: res.RequestID,
		Intent:    res.Intent.String(),
		Stage:     res.Stage.String(),
		Success:   true,
		Duration:  res.Duration,
		Message:   status,
	})
	return res, nil
}

// prepare advances res through classification and extraction.
func (d *Dispatcher) prepare(text string, res *Result) error {
	cl := d.classifier.Explain(text)
	if !cl.Matched {
		res.Stage = StageRejected
		d.auditRejection(res, ErrUnrecognizedTask)
		return ErrUnrecognizedTask
	}
	res.Intent = cl.Intent
	res.Fired = cl.Fired
	res.Stage = StageClassified
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditTaskClassified,
		RequestID: res.RequestID,
		Intent:    res.Intent.String(),
		Stage:     res.Stage.String(),
		Success:   true,
	})

	params, err := d.extractor.Extract(text, cl.Intent)
	if err != nil {
		res.Stage = StageRejected
		var missing *MissingParameterError
		if !errors.As(err, &missing) {
			err = &UnexpectedError{Intent: cl.Intent, Err: err}
		}
		d.auditRejection(res, err)
		return err
	}
	res.Params = params
	res.Stage = StageParametersBound
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditParamsBound,
		RequestID: res.RequestID,
		Intent:    res.Intent.String(),
		Stage:     res.Stage.String(),
		Success:   true,
		Fields:    params,
	})
	return nil
}

// invoke calls the registered handler and normalizes its failure.
func (d *Dispatcher) invoke(ctx context.Context, res *Result) (status string, err error) {
	log := logging.Get(logging.CategoryDispatch)

	h, ok := d.registry.Lookup(res.Intent)
	if !ok {
		uerr := &UnexpectedError{Intent: res.Intent, Err: fmt.Errorf("no handler registered for %s", res.Intent)}
		log.Error("handler missing", zap.String("req", res.RequestID), zap.Error(uerr.Err))
		return "", uerr
	}

	defer func() {
		if r := recover(); r != nil {
			err = &UnexpectedError{Intent: res.Intent, Err: fmt.Errorf("panic in handler: %v", r)}
			log.Error("handler panicked",
				zap.String("req", res.RequestID),
				zap.String("intent", res.Intent.String()),
				zap.Any("panic", r))
		}
	}()

	status, err = h.Handle(ctx, res.Params)
	if err == nil {
		return status, nil
	}

	var herr *HandlerError
	switch {
	case errors.As(err, &herr):
		if herr.Intent == perception.IntentNone {
			return "", &HandlerError{Intent: res.Intent, Err: herr.Err}
		}
		return "", herr
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "", &HandlerError{Intent: res.Intent, Err: err}
	default:
		log.Error("handler failed",
			zap.String("req", res.RequestID),
			zap.String("intent", res.Intent.String()),
			zap.Error(err))
		return "", &UnexpectedError{Intent: res.Intent, Err: err}
	}
}

func (d *Dispatcher) auditRejection(res *Result, err error) {
	intent := ""
	if res.Intent != perception.IntentNone {
		intent = res.Intent.String()
	}
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditTaskRejected,
		RequestID: res.RequestID,
		Intent:    intent,
		Stage:     res.Stage.String(),
		Success:   false,
		Duration:  res.Duration,
		Error:     err.Error(),
	})
}
