// Package transport owns the single TCP (optionally TLS) connection used to
// exchange newline-delimited JATP frames.
//
// Endpoint and TLSSettings describe where and how to connect; both are
// validated once, in NewConn, before any socket is opened. Conn is not safe
// for concurrent use: callers serialize access (the client package holds a
// mutex around each round trip).
//
//	conn, err := transport.NewConn(transport.Endpoint{
//	    Host:           "auth.internal",
//	    Port:           50052,
//	    Persistent:     true,
//	    RequestTimeout: 5 * time.Second,
//	    TLS: &transport.TLSSettings{
//	        Enabled:  true,
//	        CAFile:   "/etc/auth/ca.pem",
//	        CertFile: "/etc/auth/client.pem",
//	        KeyFile:  "/etc/auth/client-key.pem",
//	    },
//	})
//	if err != nil { ... }
//	defer conn.Close()
//
//	if err := conn.Connect(ctx); err != nil { ... }
//	err = conn.WriteLine(ctx, frame)
//	line, err := conn.ReadLine(ctx)
package transport
