package avcodec

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync/atomic"

	"github.com/looplab/fsm"
)

// SessionState представляет состояние сессии кодека или мультиплексора.
// Промежуточные фазы остановки и сброса буферов выражены флагами sessionFlags,
// а не отдельными состояниями.
type SessionState int

const (
	StateIdle SessionState = iota
	StateConfigured
	StateRunning
	StateFlushed
	StateStopped
	StateDestroyed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateFlushed:
		return "flushed"
	case StateStopped:
		return "stopped"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

func parseState(s string) SessionState {
	for st := StateIdle; st <= StateDestroyed; st++ {
		if st.String() == s {
			return st
		}
	}
	return StateDestroyed
}

// События конечного автомата сессии
const (
	EventConfigure = "configure"
	EventStart     = "start"
	EventFlush     = "flush"
	EventStop      = "stop"
	EventReset     = "reset"
	EventDestroy   = "destroy"
)

func names(states ...SessionState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = s.String()
	}
	return out
}

// StateMachine - конечный автомат жизненного цикла сессии на основе looplab/fsm.
//
// Автомат только проверяет и фиксирует переходы. Порядок работы операций:
// сначала Check, затем вызов движка, и только после его успеха Commit.
// Так неудачный вызов движка не сдвигает состояние.
//
// Помимо состояния автомат хранит признак "статическая конфигурация заморожена":
// он выставляется в момент успешного Start и снимается только Reset.
// Пока признак выставлен, AddTrack/SetRotation и подобные операции запрещены
// даже после Stop.
type StateMachine struct {
	fsm          *fsm.FSM
	staticLocked atomic.Bool
	onTransition func(from, to SessionState)
}

// NewStateMachine создает автомат в состоянии Idle.
// onTransition вызывается после каждого зафиксированного перехода, может быть nil.
func NewStateMachine(onTransition func(from, to SessionState)) *StateMachine {
	sm := &StateMachine{onTransition: onTransition}
	live := []SessionState{StateIdle, StateConfigured, StateRunning, StateFlushed, StateStopped}
	sm.fsm = fsm.NewFSM(
		StateIdle.String(),
		fsm.Events{
			{Name: EventConfigure, Src: names(StateIdle), Dst: StateConfigured.String()},
			{Name: EventStart, Src: names(StateConfigured, StateFlushed, StateStopped), Dst: StateRunning.String()},
			{Name: EventFlush, Src: names(StateRunning), Dst: StateFlushed.String()},
			{Name: EventStop, Src: names(StateRunning, StateFlushed), Dst: StateStopped.String()},
			{Name: EventReset, Src: names(live...), Dst: StateIdle.String()},
			{Name: EventDestroy, Src: names(live...), Dst: StateDestroyed.String()},
		},
		fsm.Callbacks{
			"enter_state": sm.enterState,
		},
	)
	return sm
}

func (sm *StateMachine) enterState(_ context.Context, e *fsm.Event) {
	if e.Src == e.Dst {
		return
	}
	switch parseState(e.Dst) {
	case StateRunning:
		sm.staticLocked.Store(true)
	case StateIdle:
		sm.staticLocked.Store(false)
	}
	if sm.onTransition != nil {
		sm.onTransition(parseState(e.Src), parseState(e.Dst))
	}
}

// Current возвращает текущее состояние
func (sm *StateMachine) Current() SessionState {
	return parseState(sm.fsm.Current())
}

// Can сообщает, допустимо ли событие в текущем состоянии
func (sm *StateMachine) Can(event string) bool {
	return sm.fsm.Can(event)
}

// Check возвращает CodeInvalidOperation, если событие недопустимо
func (sm *StateMachine) Check(sessionID, event string) error {
	if sm.fsm.Can(event) {
		return nil
	}
	return invalidOperation(sessionID, event, sm.Current())
}

// Commit выполняет переход. Переход в то же состояние (reset из Idle) не ошибка.
func (sm *StateMachine) Commit(sessionID, event string) error {
	err := sm.fsm.Event(context.Background(), event)
	if err == nil {
		return nil
	}
	var noTransition fsm.NoTransitionError
	if stderrors.As(err, &noTransition) && noTransition.Err == nil {
		return nil
	}
	slog.Debug("StateMachine.Commit rejected",
		slog.String("session_id", sessionID),
		slog.String("event", event),
		slog.String("error", err.Error()))
	return invalidOperation(sessionID, event, sm.Current())
}

// StaticLocked сообщает, заморожена ли статическая конфигурация
func (sm *StateMachine) StaticLocked() bool {
	return sm.staticLocked.Load()
}

// CheckStatic проверяет, что статическая конфигурация еще разрешена:
// сессия сконфигурирована и в текущем цикле Start еще не выполнялся.
func (sm *StateMachine) CheckStatic(sessionID, op string) error {
	state := sm.Current()
	if state != StateConfigured || sm.staticLocked.Load() {
		return invalidOperation(sessionID, op, state)
	}
	return nil
}

// CheckRunning проверяет, что сессия обменивается данными
func (sm *StateMachine) CheckRunning(sessionID, op string) error {
	if state := sm.Current(); state != StateRunning {
		return invalidOperation(sessionID, op, state)
	}
	return nil
}

// sessionFlags - атомарные флаги, по которым CallbackGate решает, доставлять ли
// событие о доступности буфера. Флаг выставляется до вызова движка, поэтому
// гонящийся callback либо видит флаг, либо пришел раньше и обрабатывается.
type sessionFlags struct {
	flushing atomic.Bool
	stopped  atomic.Bool
	eos      atomic.Bool
}

// clearAll сбрасывает все флаги, вызывается в начале Start
func (f *sessionFlags) clearAll() {
	f.flushing.Store(false)
	f.stopped.Store(false)
	f.eos.Store(false)
}

// suppressInput - входные буферы не раздаются во время flush/stop и после EOS
func (f *sessionFlags) suppressInput() bool {
	return f.flushing.Load() || f.stopped.Load() || f.eos.Load()
}

// suppressOutput - выходные буферы не раздаются во время flush/stop
func (f *sessionFlags) suppressOutput() bool {
	return f.flushing.Load() || f.stopped.Load()
}

// FlagSnapshot - снимок флагов для диагностики и тестов
type FlagSnapshot struct {
	Flushing   bool
	Stopped    bool
	EOSReached bool
}

func (f *sessionFlags) snapshot() FlagSnapshot {
	return FlagSnapshot{
		Flushing:   f.flushing.Load(),
		Stopped:    f.stopped.Load(),
		EOSReached: f.eos.Load(),
	}
}
