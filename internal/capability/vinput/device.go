package vinput

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-ua/internal/vapix"
)

const (
	endpointSchema     = "virtualinput/getschemaversions.cgi"
	endpointActivate   = "virtualinput/activate.cgi"
	endpointDeactivate = "virtualinput/deactivate.cgi"
)

// Response elements.
const (
	tagResponse          = "VirtualInputResponse"
	tagSuccess           = "Success"
	tagError             = "Error"
	tagErrorDescription  = "ErrorDescription"
	tagSchemaVersion     = "SchemaVersion"
	tagMajorVersion      = "MajorVersion"
	tagActivateSuccess   = "ActivateSuccess"
	tagDeactivateSuccess = "DeactivateSuccess"
	tagStateChanged      = "StateChanged"
)

// inputsAPI is the device surface the module depends on.
type inputsAPI interface {
	SchemaVersion(ctx context.Context) (string, error)
	SetInput(ctx context.Context, schema string, port int, active bool, duration int32) (changed bool, err error)
}

type deviceClient struct {
	c *vapix.Client
}

// SchemaVersion returns the highest major schema version the device
// advertises.
func (d deviceClient) SchemaVersion(ctx context.Context) (string, error) {
	var r response
	if err := d.c.GetXML(ctx, endpointSchema, nil, &r); err != nil {
		return "", err
	}
	if err := r.err(endpointSchema); err != nil {
		return "", err
	}
	best, bestN := "", -1
	for _, v := range r.majors {
		n, err := strconv.Atoi(v)
		if err != nil {
			return "", fmt.Errorf("%w: %s: major version %q", vapix.ErrMalformedResponse, endpointSchema, v)
		}
		if n > bestN {
			best, bestN = v, n
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w: %s: no schema version", vapix.ErrMalformedResponse, endpointSchema)
	}
	return best, nil
}

// SetInput activates or deactivates a virtual input. A negative duration is
// left out of the request; deactivation never carries one.
func (d deviceClient) SetInput(ctx context.Context, schema string, port int, active bool, duration int32) (bool, error) {
	endpoint := endpointDeactivate
	if active {
		endpoint = endpointActivate
	}
	q := url.Values{}
	q.Set("schemaversion", schema)
	q.Set("port", strconv.Itoa(port))
	if active && duration >= 0 {
		q.Set("duration", strconv.Itoa(int(duration)))
	}

	var r response
	if err := d.c.GetXML(ctx, endpoint, q, &r); err != nil {
		return false, err
	}
	if err := r.err(endpoint); err != nil {
		return false, err
	}
	if r.stateChanged == nil {
		return false, fmt.Errorf("%w: %s: no %s", vapix.ErrMalformedResponse, endpoint, tagStateChanged)
	}
	return *r.stateChanged, nil
}

// response is what UnmarshalXML extracts from a VirtualInputResponse.
type response struct {
	success      bool
	failed       bool
	description  string
	majors       []string
	stateChanged *bool
}

// err returns the device's error, if the response is one.
func (r response) err(endpoint string) error {
	switch {
	case r.failed:
		return &vapix.APIError{Method: endpoint, Message: r.description}
	case !r.success:
		return fmt.Errorf("%w: %s: neither %s nor %s", vapix.ErrMalformedResponse, endpoint, tagSuccess, tagError)
	}
	return nil
}

// UnmarshalXML walks a VirtualInputResponse and picks out the elements of
// interest wherever they are nested below the root.
func (r *response) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	if start.Name.Local != tagResponse {
		return fmt.Errorf("%w: root is %s, want %s", vapix.ErrMalformedResponse, start.Name.Local, tagResponse)
	}
	stack := []string{start.Name.Local}
	for len(stack) > 0 {
		tok, err := d.Token()
		if err != nil {
			return fmt.Errorf("%w: %w", vapix.ErrMalformedResponse, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name.Local)
			switch t.Name.Local {
			case tagSuccess:
				r.success = true
			case tagError:
				r.failed = true
			}
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			if err := r.text(stack, text); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *response) text(stack []string, text string) error {
	switch stack[len(stack)-1] {
	case tagErrorDescription:
		if r.failed {
			r.description = text
		}
	case tagMajorVersion:
		if r.success && slices.Contains(stack, tagSchemaVersion) {
			r.majors = append(r.majors, text)
		}
	case tagStateChanged:
		if !r.success || !(slices.Contains(stack, tagActivateSuccess) || slices.Contains(stack, tagDeactivateSuccess)) {
			return nil
		}
		var changed bool
		switch text {
		case "true":
			changed = true
		case "false":
		default:
			return fmt.Errorf("%w: %s is %q", vapix.ErrMalformedResponse, tagStateChanged, text)
		}
		r.stateChanged = &changed
	}
	return nil
}
