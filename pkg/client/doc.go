// Package client is the register-access API of an IPbus target.
//
// Operations are queued, not executed: each read-like call returns a
// deferred handle from package valmem and each write returns once packed.
// Dispatch sends everything queued and resolves the handles:
//
//	c, err := client.DefaultRegistry().New("board0", "ipbustcp-2.0://192.168.0.10:50001", client.Config{})
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	_ = c.Write(0x10, 0x1)
//	reg, _ := c.Read(0x10)
//	if err := c.Dispatch(ctx); err != nil {
//	    return err
//	}
//	v, _ := reg.Value() // 0x1
//
// A failed dispatch leaves every handle it would have filled unresolved and
// clears the queue; there are no retries.
package client
