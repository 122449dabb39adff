package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// These are the fully-qualified gRPC method names served by the external
// engine process. There is no generated stub: requests and responses are
// carried as google.protobuf.Struct, so the client only needs the real
// grpc-go and protobuf runtimes, not a compiled .proto.
const (
	methodInitialState   = "/fightclaw.engine.v1.Engine/InitialState"
	methodLegalMoves     = "/fightclaw.engine.v1.Engine/LegalMoves"
	methodApply          = "/fightclaw.engine.v1.Engine/Apply"
	methodIsTerminal     = "/fightclaw.engine.v1.Engine/IsTerminal"
	methodCurrentPlayer  = "/fightclaw.engine.v1.Engine/CurrentPlayer"
)

// GRPCClient binds the Engine interface to an out-of-process engine over
// gRPC, mirroring how the teacher binds match execution to its Executor
// service.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// Dial connects to an engine process at addr. Connections are plaintext;
// operators terminate TLS at a sidecar the way the teacher's Executor
// deployment does.
func Dial(addr string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("engine: dial %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func jsonToStruct(raw json.RawMessage) (*structpb.Struct, error) {
	m := map[string]interface{}{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("engine: decode payload: %w", err)
		}
	}
	return structpb.NewStruct(m)
}

func structToJSON(s *structpb.Struct) (json.RawMessage, error) {
	if s == nil {
		return json.RawMessage("null"), nil
	}
	return json.Marshal(s.AsMap())
}

func (c *GRPCClient) InitialState(ctx context.Context, seed int64, players [2]string) (State, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"seed":    seed,
		"players": []interface{}{players[0], players[1]},
	})
	if err != nil {
		return nil, err
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, methodInitialState, req, resp); err != nil {
		return nil, fmt.Errorf("engine: InitialState: %w", err)
	}
	return structToJSON(resp)
}

func (c *GRPCClient) LegalMoves(ctx context.Context, state State) ([]Move, error) {
	req, err := jsonToStruct(state)
	if err != nil {
		return nil, err
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, methodLegalMoves, req, resp); err != nil {
		return nil, fmt.Errorf("engine: LegalMoves: %w", err)
	}
	list, ok := resp.Fields["moves"]
	if !ok {
		return nil, nil
	}
	moves := make([]Move, 0, len(list.GetListValue().GetValues()))
	for _, v := range list.GetListValue().GetValues() {
		b, err := json.Marshal(v.AsInterface())
		if err != nil {
			return nil, err
		}
		moves = append(moves, b)
	}
	return moves, nil
}

func (c *GRPCClient) Apply(ctx context.Context, state State, move Move) (State, []EngineEvent, error) {
	stateStruct, err := jsonToStruct(state)
	if err != nil {
		return nil, nil, err
	}
	moveStruct, err := jsonToStruct(move)
	if err != nil {
		return nil, nil, err
	}
	req, err := structpb.NewStruct(map[string]interface{}{
		"state": stateStruct.AsMap(),
		"move":  moveStruct.AsMap(),
	})
	if err != nil {
		return nil, nil, err
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, methodApply, req, resp); err != nil {
		return nil, nil, fmt.Errorf("engine: Apply: %w", err)
	}
	if errField, ok := resp.Fields["error"]; ok && errField.GetStringValue() != "" {
		return nil, nil, fmt.Errorf("%w: %s", ErrIllegalMove, errField.GetStringValue())
	}
	newState, err := structToJSON(resp.Fields["state"].GetStructValue())
	if err != nil {
		return nil, nil, err
	}
	var events []EngineEvent
	if evList, ok := resp.Fields["events"]; ok {
		for _, v := range evList.GetListValue().GetValues() {
			b, err := json.Marshal(v.AsInterface())
			if err != nil {
				return nil, nil, err
			}
			events = append(events, b)
		}
	}
	return newState, events, nil
}

func (c *GRPCClient) IsTerminal(ctx context.Context, state State) (Terminal, error) {
	req, err := jsonToStruct(state)
	if err != nil {
		return Terminal{}, err
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, methodIsTerminal, req, resp); err != nil {
		return Terminal{}, fmt.Errorf("engine: IsTerminal: %w", err)
	}
	return Terminal{
		Ended:  resp.Fields["ended"].GetBoolValue(),
		Winner: resp.Fields["winner"].GetStringValue(),
		Reason: resp.Fields["reason"].GetStringValue(),
	}, nil
}

func (c *GRPCClient) CurrentPlayer(ctx context.Context, state State) (string, error) {
	req, err := jsonToStruct(state)
	if err != nil {
		return "", err
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, methodCurrentPlayer, req, resp); err != nil {
		return "", fmt.Errorf("engine: CurrentPlayer: %w", err)
	}
	return resp.Fields["agentId"].GetStringValue(), nil
}
