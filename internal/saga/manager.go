package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxInstances bounds how many finished instances are kept for inspection
const maxInstances = 256

// Manager runs saga definitions and records their instances
type Manager struct {
	logger      *zap.Logger
	instances   map[SagaID]*SagaInstance
	order       []SagaID
	definitions map[string]SagaDefinition
	eventChan   chan SagaEvent
	mu          sync.RWMutex
}

// NewManager creates a new saga manager
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		logger:      logger,
		instances:   make(map[SagaID]*SagaInstance),
		definitions: make(map[string]SagaDefinition),
		eventChan:   make(chan SagaEvent, 100),
	}
}

// RegisterDefinition registers a saga definition
func (m *Manager) RegisterDefinition(def SagaDefinition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.definitions[def.ID()] = def
	m.logger.Info("Saga definition registered", zap.String("id", def.ID()))
}

// Run executes the registered definition step by step. When a step fails,
// completed steps are compensated in reverse order and the step error is
// returned together with the final instance.
func (m *Manager) Run(ctx context.Context, definitionID string, data SagaData) (*SagaInstance, error) {
	m.mu.RLock()
	def, exists := m.definitions[definitionID]
	m.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("saga definition not found: %s", definitionID)
	}
	if data == nil {
		data = SagaData{}
	}

	steps := def.Steps()
	sagaID := SagaID(definitionID + "_" + uuid.NewString())
	stepExecs := make([]StepExecution, len(steps))
	for i, step := range steps {
		stepExecs[i] = StepExecution{ID: step.ID(), State: StepStatePending}
	}
	m.store(&SagaInstance{
		ID:         sagaID,
		Definition: definitionID,
		State:      SagaStateStarted,
		Steps:      stepExecs,
		StartedAt:  time.Now(),
	})
	m.emit(sagaID, "", EventSagaStarted, nil)
	m.logger.Debug("Saga started", zap.String("sagaID", string(sagaID)), zap.String("definition", definitionID))

	if timeout := def.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	m.update(sagaID, func(in *SagaInstance) { in.State = SagaStateRunning })
	lastCompletedStep := -1
	for i, step := range steps {
		if err := m.executeStep(ctx, sagaID, i, step, data); err != nil {
			m.logger.Error("Step failed",
				zap.String("sagaID", string(sagaID)),
				zap.String("stepID", string(step.ID())),
				zap.Error(err))

			// compensation must run even if the caller's context is done
			m.compensateSaga(context.WithoutCancel(ctx), sagaID, steps, lastCompletedStep, data, err)
			instance, _ := m.GetSaga(sagaID)
			return instance, fmt.Errorf("saga %s failed at %s: %w", definitionID, step.ID(), err)
		}
		lastCompletedStep = i
	}

	m.finish(sagaID, SagaStateCompleted, nil)
	m.emit(sagaID, "", EventSagaCompleted, nil)
	m.logger.Debug("Saga completed", zap.String("sagaID", string(sagaID)))
	instance, _ := m.GetSaga(sagaID)
	return instance, nil
}

// GetSaga returns a snapshot of a saga instance by ID
func (m *Manager) GetSaga(sagaID SagaID) (*SagaInstance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	instance, exists := m.instances[sagaID]
	if !exists {
		return nil, false
	}
	c := *instance
	c.Steps = append([]StepExecution(nil), instance.Steps...)
	return &c, true
}

func (m *Manager) executeStep(ctx context.Context, sagaID SagaID, stepIndex int, step Step, data SagaData) error {
	now := time.Now()
	m.update(sagaID, func(in *SagaInstance) {
		in.Steps[stepIndex].State = StepStateRunning
		in.Steps[stepIndex].StartedAt = &now
	})
	m.emit(sagaID, step.ID(), EventStepStarted, nil)

	if err := ctx.Err(); err != nil {
		m.failStep(sagaID, stepIndex, step, err)
		return err
	}

	err := step.Execute(ctx, data)
	done := time.Now()
	switch {
	case err == nil:
		m.update(sagaID, func(in *SagaInstance) {
			in.Steps[stepIndex].State = StepStateCompleted
			in.Steps[stepIndex].CompletedAt = &done
		})
		m.emit(sagaID, step.ID(), EventStepCompleted, nil)
		m.logger.Debug("Step completed",
			zap.String("sagaID", string(sagaID)),
			zap.String("stepID", string(step.ID())))
		return nil
	case errors.Is(err, ErrSkipStep):
		m.update(sagaID, func(in *SagaInstance) {
			in.Steps[stepIndex].State = StepStateSkipped
			in.Steps[stepIndex].CompletedAt = &done
		})
		m.emit(sagaID, step.ID(), EventStepSkipped, nil)
		return nil
	default:
		m.failStep(sagaID, stepIndex, step, err)
		return err
	}
}

func (m *Manager) failStep(sagaID SagaID, stepIndex int, step Step, err error) {
	now := time.Now()
	m.update(sagaID, func(in *SagaInstance) {
		in.Steps[stepIndex].State = StepStateFailed
		in.Steps[stepIndex].Error = err.Error()
		in.Steps[stepIndex].CompletedAt = &now
	})
	m.emit(sagaID, step.ID(), EventStepFailed, err)
}

// compensateSaga runs compensation for completed steps in reverse order
func (m *Manager) compensateSaga(ctx context.Context, sagaID SagaID, steps []Step, lastCompletedStep int, data SagaData, cause error) {
	for i := lastCompletedStep; i >= 0; i-- {
		step := steps[i]
		if instance, ok := m.GetSaga(sagaID); ok && instance.Steps[i].State == StepStateSkipped {
			continue
		}

		m.logger.Info("Compensating step",
			zap.String("sagaID", string(sagaID)),
			zap.String("stepID", string(step.ID())))

		if err := step.Compensate(ctx, data); err != nil {
			m.logger.Error("Compensation failed",
				zap.String("sagaID", string(sagaID)),
				zap.String("stepID", string(step.ID())),
				zap.Error(err))
			continue
		}
		m.update(sagaID, func(in *SagaInstance) { in.Steps[i].State = StepStateCompensated })
		m.emit(sagaID, step.ID(), EventStepCompensated, nil)
	}

	m.finish(sagaID, SagaStateCompensated, cause)
	m.emit(sagaID, "", EventSagaCompensated, cause)
	m.logger.Info("Saga compensated", zap.String("sagaID", string(sagaID)))
}

func (m *Manager) finish(sagaID SagaID, state SagaState, cause error) {
	now := time.Now()
	m.update(sagaID, func(in *SagaInstance) {
		in.State = state
		in.CompletedAt = &now
		if cause != nil {
			in.Error = cause.Error()
		}
	})
}

func (m *Manager) store(instance *SagaInstance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[instance.ID] = instance
	m.order = append(m.order, instance.ID)
	for len(m.order) > maxInstances {
		delete(m.instances, m.order[0])
		m.order = m.order[1:]
	}
}

func (m *Manager) update(sagaID SagaID, fn func(*SagaInstance)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if instance, exists := m.instances[sagaID]; exists {
		fn(instance)
	}
}

// emit publishes a lifecycle event without blocking; events are dropped
// while nobody drains the channel
func (m *Manager) emit(sagaID SagaID, stepID StepID, eventType EventType, err error) {
	event := SagaEvent{SagaID: sagaID, StepID: stepID, Type: eventType, Timestamp: time.Now()}
	if err != nil {
		event.Error = err.Error()
	}
	m.mu.RLock()
	if instance, exists := m.instances[sagaID]; exists {
		event.Definition = instance.Definition
	}
	m.mu.RUnlock()

	select {
	case m.eventChan <- event:
	default:
		m.logger.Debug("Event channel full, dropping event",
			zap.String("sagaID", string(sagaID)),
			zap.String("type", string(eventType)))
	}
}

// EventChannel returns the event channel for listening to saga events
func (m *Manager) EventChannel() <-chan SagaEvent {
	return m.eventChan
}
