// Package vapix is a client for the device's HTTP control API.
//
// Each capability domain authenticates with its own service account, so a
// Connector hands out one Client per domain with credentials resolved from a
// CredentialSource:
//
//	conn := vapix.NewConnector(cfg.Device.BaseURL, cfg.Device.RequestTimeout(), creds)
//	client, err := conn.Client(ctx, "vapix-ioports-user")
//	if err != nil {
//	    return err
//	}
//
//	var data portList
//	err = client.PostJSON(ctx, "io/portmanagement.cgi",
//	    vapix.Request{APIVersion: "1.1", Method: "getPorts"}, &data)
//
// JSON APIs answer with a {"data": ...} or {"error": {...}} envelope; the
// error form is returned as *APIError. Older CGIs answer with XML, which
// GetXML decodes into a caller-supplied struct. Any status other than 200 is
// an error (ErrStatus).
package vapix
