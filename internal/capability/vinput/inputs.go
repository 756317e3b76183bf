package vinput

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
	"github.com/nerrad567/gray-logic-ua/internal/graph"
	"github.com/nerrad567/gray-logic-ua/internal/history"
)

// noDuration asks the device to keep an activated input active until it is
// deactivated.
const noDuration int32 = -1

var (
	portArg = addrspace.Argument{
		Name:        "Virtual Input",
		DataType:    addrspace.UInt32Type,
		Description: "Virtual Input port number (1..64)",
	}
	durationArg = addrspace.Argument{
		Name:        "Duration",
		DataType:    addrspace.Int32Type,
		Description: "Duration in seconds (-1 to ignore)",
	}
	changedArg = addrspace.Argument{
		Name:        "State Changed",
		DataType:    addrspace.BooleanType,
		Description: "State Changed",
	}
)

func (m *Module) addMethods(b *graph.Builder) error {
	var err error
	m.activate, err = b.AddMethod(addrspace.MethodNode{
		Parent:          m.object,
		BrowseName:      m.qn("Activate Method"),
		DisplayName:     "Activate",
		Description:     "Activate Virtual Input",
		InputArguments:  []addrspace.Argument{portArg, durationArg},
		OutputArguments: []addrspace.Argument{changedArg},
		Callback:        m.callActivate,
	})
	if err != nil {
		return fmt.Errorf("adding Activate: %w", err)
	}
	m.deact, err = b.AddMethod(addrspace.MethodNode{
		Parent:          m.object,
		BrowseName:      m.qn("Deactivate Method"),
		DisplayName:     "Deactivate",
		Description:     "Deactivate Virtual Input",
		InputArguments:  []addrspace.Argument{portArg},
		OutputArguments: []addrspace.Argument{changedArg},
		Callback:        m.callDeactivate,
	})
	if err != nil {
		return fmt.Errorf("adding Deactivate: %w", err)
	}
	return nil
}

func (m *Module) callActivate(ctx context.Context, _ addrspace.NodeID, input []any) ([]any, error) {
	port, err := portArgument(input[0])
	if err != nil {
		return nil, err
	}
	duration, ok := input[1].(int32)
	if !ok {
		return nil, fmt.Errorf("%w: duration is %T", addrspace.ErrTypeMismatch, input[1])
	}
	changed, err := m.setInput(ctx, port, true, duration)
	if err != nil {
		return nil, err
	}
	return []any{changed}, nil
}

func (m *Module) callDeactivate(ctx context.Context, _ addrspace.NodeID, input []any) ([]any, error) {
	port, err := portArgument(input[0])
	if err != nil {
		return nil, err
	}
	changed, err := m.setInput(ctx, port, false, noDuration)
	if err != nil {
		return nil, err
	}
	return []any{changed}, nil
}

// portArgument validates the port number of a method call.
func portArgument(v any) (int, error) {
	n, ok := v.(uint32)
	if !ok {
		return 0, fmt.Errorf("%w: port is %T", addrspace.ErrTypeMismatch, v)
	}
	if n < 1 || n > MaxPorts {
		return 0, fmt.Errorf("%w: port %d outside 1..%d", addrspace.ErrOutOfRange, n, MaxPorts)
	}
	return int(n), nil
}

func (m *Module) dataSource() addrspace.DataSource {
	return addrspace.DataSource{
		Read:  m.read,
		Write: m.write,
	}
}

func (m *Module) read(_ context.Context, id addrspace.NodeID) (any, error) {
	port, err := m.portOf(id)
	if err != nil {
		return nil, m.failed(err)
	}
	active, ok := m.states.Get(port)
	if !ok {
		return nil, m.failed(fmt.Errorf("%w: virtual input %d is not cached", addrspace.ErrNodeIDUnknown, port))
	}
	return active, nil
}

func (m *Module) write(ctx context.Context, id addrspace.NodeID, value any) error {
	active, ok := value.(bool)
	if !ok {
		return m.failed(fmt.Errorf("%w: virtual input expects a Boolean, got %T", addrspace.ErrTypeMismatch, value))
	}
	port, err := m.portOf(id)
	if err != nil {
		return m.failed(err)
	}
	_, err = m.setInput(ctx, port, active, noDuration)
	return err
}

// setInput forwards a state change to the device. The cache follows at once
// when the device reports that the state changed.
func (m *Module) setInput(ctx context.Context, port int, active bool, duration int32) (bool, error) {
	changed, err := m.api.SetInput(ctx, m.schema, port, active, duration)
	if err != nil {
		return false, m.failed(fmt.Errorf("%w: setting virtual input %d: %w", addrspace.ErrCommunication, port, err))
	}
	m.logger.Debug("virtual input set", "port", port, "active", active, "changed", changed)
	if changed {
		m.states.Put(port, active)
		m.record(port, active, history.SourceWrite)
	}
	return changed, nil
}

func (m *Module) failed(err error) error {
	status := addrspace.StatusCode(err)
	m.host.Metrics.DataSourceError(LogicalName, "State", status)
	m.logger.Warn("virtual input access failed", "status", status, "error", err)
	return err
}

func (m *Module) record(port int, active bool, source string) {
	t := history.Transition{
		Module:   LogicalName,
		Instance: inputName(port),
		Property: "State",
		Value:    strconv.FormatBool(active),
		Source:   source,
		At:       time.Now(),
	}
	if err := m.host.Recorder.RecordTransition(context.Background(), t); err != nil {
		m.logger.Warn("recording transition failed", "port", port, "error", err)
	}
}
