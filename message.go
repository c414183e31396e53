// SPDX-License-Identifier: Apache-2.0

package gssapi

import "errors"

// messageContext returns a context that can provide per-message protection: an established
// context, or one whose mechanism has signalled ContextFlagProtReady.
func (e *Engine) messageContext(h ContextHandle) (*contextEntry, error) {
	c, err := e.context(h)
	if err != nil {
		return nil, err
	}

	switch {
	case c.state == stateExpired:
		return nil, makeStatus(errContextExpired, nil)
	case c.state == stateEstablished:
	case c.state == stateInProgress && c.flags&ContextFlagProtReady != 0:
	default:
		return nil, makeStatus(errNoContext, errors.New("gssapi: context is not ready for per-message protection"))
	}

	if c.lifetime.Expired(e.now()) {
		c.state = stateExpired
		c.logger.Debug("security context expired")
		return nil, makeStatus(errContextExpired, nil)
	}

	return c, nil
}

// messageStatus converts a mechanism result.  Supplementary information is passed back as a
// non-fatal InfoStatus alongside the outputs.
func (c *contextEntry) messageStatus(err error) error {
	if err == nil {
		return nil
	}

	err = withMech(c.mech.Oid(), err)
	if IsFatal(err) {
		c.logger.Warn("per-message token rejected", "error", err)
	} else {
		c.logger.Debug("per-message token accepted with supplementary status", "status", err.Error())
	}

	return err
}

// GetMIC implements GSS_GetMIC (RFC 2743 § 2.3.1).
func (e *Engine) GetMIC(h ContextHandle, qop QoP, message []byte) (Buffer, error) {
	c, err := e.messageContext(h)
	if err != nil {
		return nil, err
	}

	tok, err := c.mc.GetMIC(qop, message)
	if err != nil {
		return nil, c.messageStatus(err)
	}

	return newBuffer(tok), nil
}

// VerifyMIC implements GSS_VerifyMIC (RFC 2743 § 2.3.2).  A duplicate or out-of-sequence token
// that is otherwise valid is reported as an InfoStatus error together with the QoP; use IsFatal
// to tell these apart from failures.
func (e *Engine) VerifyMIC(h ContextHandle, message, token []byte) (QoP, error) {
	c, err := e.messageContext(h)
	if err != nil {
		return 0, err
	}

	qop, err := c.mc.VerifyMIC(message, token)
	err = c.messageStatus(err)
	if IsFatal(err) {
		return 0, err
	}

	return qop, err
}

// Wrap implements GSS_Wrap (RFC 2743 § 2.3.3).  confState reports whether confidentiality was
// applied.
func (e *Engine) Wrap(h ContextHandle, confReq bool, qop QoP, message []byte) (Buffer, bool, error) {
	c, err := e.messageContext(h)
	if err != nil {
		return nil, false, err
	}

	tok, confState, err := c.mc.Wrap(confReq && c.flags&ContextFlagConf != 0, qop, message)
	if err != nil {
		return nil, false, c.messageStatus(err)
	}

	return newBuffer(tok), confState, nil
}

// Unwrap implements GSS_Unwrap (RFC 2743 § 2.3.4).  Supplementary information is reported as
// for VerifyMIC.
func (e *Engine) Unwrap(h ContextHandle, token []byte) (Buffer, bool, QoP, error) {
	c, err := e.messageContext(h)
	if err != nil {
		return nil, false, 0, err
	}

	msg, confState, qop, err := c.mc.Unwrap(token)
	err = c.messageStatus(err)
	if IsFatal(err) {
		return nil, false, 0, err
	}

	return newBuffer(msg), confState, qop, err
}

// WrapSizeLimit implements GSS_Wrap_size_limit (RFC 2743 § 2.2.7): the largest message whose
// wrapped form is no longer than maxOutput.  The context is not modified.
func (e *Engine) WrapSizeLimit(h ContextHandle, confReq bool, qop QoP, maxOutput uint32) (uint32, error) {
	c, err := e.messageContext(h)
	if err != nil {
		return 0, err
	}

	limit, err := c.mc.WrapSizeLimit(confReq && c.flags&ContextFlagConf != 0, qop, maxOutput)
	return limit, withMech(c.mech.Oid(), err)
}
