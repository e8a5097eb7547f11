// Package client executes JATP calls against the auth service.
//
// A Client owns one connection. Each Call writes a single request line,
// reads a single response line and returns its data, all inside the
// configured retry policy. Errors are always *autherr.Error.
//
//	c, err := client.New(client.Config{
//		Endpoint:    transport.Endpoint{Host: "auth.internal", Port: 50052, Persistent: true},
//		Credentials: protocol.ServiceAuth("billing", secret),
//	})
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	data, err := c.Call(ctx, client.MethodValidateToken, map[string]any{"token": tok})
//
// GetPublicKey and ActivePublicKeys serve keys from a cache.KeyStore and
// fall back to JWTService.GetPublicKey on a miss.
package client
