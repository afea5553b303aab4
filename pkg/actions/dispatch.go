package actions

import (
	"context"
	"encoding/json"
	"fmt"
)

// Dispatch routes a named action with a raw JSON payload. This is the entry
// point the HTTP surface uses; programmatic callers use the typed methods.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, payload json.RawMessage) (any, error) {
	d.logger.Debug("Dispatching action %s", name)

	result, err := d.dispatch(ctx, name, payload)
	if err != nil {
		d.logger.Warn("Action %s failed: %s: %v", name, Code(err), err)
	}
	return result, err
}

func (d *Dispatcher) dispatch(ctx context.Context, name string, payload json.RawMessage) (any, error) {
	switch name {
	case ActionSpawnCodingAgent:
		var req SpawnRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return d.Spawn(ctx, req)

	case ActionSendToCodingAgent:
		var req SendRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return d.Send(ctx, req)

	case ActionListCodingAgents:
		return d.List(ctx)

	case ActionStopCodingAgent:
		var req StopRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return d.Stop(ctx, req)

	case ActionProvisionWorkspace:
		var req ProvisionRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return d.Provision(ctx, req)

	case ActionFinalizeWorkspace:
		var req FinalizeRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return d.Finalize(ctx, req)

	case ActionTeardownWorkspace:
		var req TeardownRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return d.Teardown(ctx, req)

	default:
		return nil, fmt.Errorf("unknown action %q", name)
	}
}

func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("invalid action payload: %w", err)
	}
	return nil
}
