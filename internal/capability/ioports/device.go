package ioports

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/nerrad567/gray-logic-ua/internal/vapix"
)

const (
	endpoint = "io/portmanagement.cgi"

	methodVersions = "getSupportedVersions"
	methodGetPorts = "getPorts"
	methodSetPorts = "setPorts"

	// Device-side spellings.
	deviceInput  = "input"
	deviceOutput = "output"
	deviceOpen   = "open"
	deviceClosed = "closed"

	// Keys accepted by setPorts.
	keyName        = "name"
	keyUsage       = "usage"
	keyDirection   = "direction"
	keyState       = "state"
	keyNormalState = "normalState"
)

// APIVersion is the port management API version the module is written for.
var APIVersion = vapix.MustParseVersion("1.1")

// devicePort is one item of a getPorts response.
type devicePort struct {
	Port         string `json:"port"`
	Configurable bool   `json:"configurable"`
	ReadOnly     bool   `json:"readonly"`
	Usage        string `json:"usage"`
	Name         string `json:"name"`
	Direction    string `json:"direction"`
	State        string `json:"state"`
	NormalState  string `json:"normalState"`
}

type portList struct {
	NumberOfPorts int          `json:"numberOfPorts"`
	Items         []devicePort `json:"items"`
}

// portsAPI is the subset of the port management API the module calls.
type portsAPI interface {
	SupportedVersions(ctx context.Context) ([]string, error)
	GetPorts(ctx context.Context) (map[int]Port, error)
	SetPort(ctx context.Context, port int, key, value string) error
}

// deviceClient implements portsAPI over the JSON API.
type deviceClient struct {
	c *vapix.Client
}

func (d deviceClient) SupportedVersions(ctx context.Context) ([]string, error) {
	var out struct {
		APIVersions []string `json:"apiVersions"`
	}
	if err := d.c.PostJSON(ctx, endpoint, vapix.Request{Method: methodVersions}, &out); err != nil {
		return nil, err
	}
	return out.APIVersions, nil
}

func (d deviceClient) GetPorts(ctx context.Context) (map[int]Port, error) {
	var list portList
	req := vapix.Request{APIVersion: APIVersion.String(), Method: methodGetPorts}
	if err := d.c.PostJSON(ctx, endpoint, req, &list); err != nil {
		return nil, err
	}
	if list.NumberOfPorts != len(list.Items) {
		return nil, fmt.Errorf("%w: %d items for %d ports", vapix.ErrMalformedResponse, len(list.Items), list.NumberOfPorts)
	}

	ports := make(map[int]Port, len(list.Items))
	for _, item := range list.Items {
		index, p, err := item.decode()
		if err != nil {
			return nil, err
		}
		ports[index] = p
	}
	return ports, nil
}

func (d deviceClient) SetPort(ctx context.Context, port int, key, value string) error {
	req := vapix.Request{
		APIVersion: APIVersion.String(),
		Method:     methodSetPorts,
		Params: map[string]any{
			"ports": []map[string]string{{"port": strconv.Itoa(port), key: value}},
		},
	}
	return d.c.PostJSON(ctx, endpoint, req, nil)
}

func (item devicePort) decode() (int, Port, error) {
	index, err := strconv.Atoi(item.Port)
	if err != nil || index < 0 {
		return 0, Port{}, fmt.Errorf("%w: port %q", vapix.ErrMalformedResponse, item.Port)
	}
	dir, err := parseDirection(item.Direction)
	if err != nil {
		return 0, Port{}, fmt.Errorf("port %d: %w", index, err)
	}
	state, err := parseState(item.State)
	if err != nil {
		return 0, Port{}, fmt.Errorf("port %d: %w", index, err)
	}
	normal, err := parseState(item.NormalState)
	if err != nil {
		return 0, Port{}, fmt.Errorf("port %d: %w", index, err)
	}
	return index, Port{
		Configurable: item.Configurable,
		Direction:    dir,
		Disabled:     item.ReadOnly,
		Name:         item.Name,
		Usage:        item.Usage,
		NormalState:  normal,
		State:        state,
	}, nil
}

func parseDirection(s string) (Direction, error) {
	switch s {
	case deviceInput:
		return Input, nil
	case deviceOutput:
		return Output, nil
	}
	return 0, fmt.Errorf("%w: direction %q", vapix.ErrMalformedResponse, s)
}

func parseState(s string) (State, error) {
	switch s {
	case deviceOpen:
		return Open, nil
	case deviceClosed:
		return Closed, nil
	}
	return 0, fmt.Errorf("%w: state %q", vapix.ErrMalformedResponse, s)
}

func (d Direction) device() string {
	if d == Output {
		return deviceOutput
	}
	return deviceInput
}

func (s State) device() string {
	if s == Closed {
		return deviceClosed
	}
	return deviceOpen
}

// sortedIndexes returns the keys of ports in ascending order.
func sortedIndexes(ports map[int]Port) []int {
	out := make([]int, 0, len(ports))
	for i := range ports {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
