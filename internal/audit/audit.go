package audit

import (
	"context"

	"github.com/weiawesome/flow-market/pkg/log"
)

// Actions recorded by the market.
const (
	ActionRegister      = "market.register"
	ActionLogin         = "market.login"
	ActionLoginFailed   = "market.login_failed"
	ActionLogout        = "market.logout"
	ActionCreateProduct = "market.create_product"
	ActionUpload        = "market.upload"
	ActionSendMessage   = "market.send_message"
)

const (
	FieldAction = "action"
	FieldTarget = "target"
	FieldDetail = "detail"
)

// Entry is one audited action. UserID 0 is an anonymous actor and is left
// off the line; so are empty Target and Detail.
type Entry struct {
	Action string
	UserID uint
	Target string
	Detail string
}

// Write logs e at info level through the logger scoped into ctx.
func Write(ctx context.Context, e Entry, msg string) {
	l := log.Ctx(ctx)
	evt := l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, e.Action)
	if e.UserID != 0 {
		evt = evt.Uint(log.FieldUserID, e.UserID)
	}
	if e.Target != "" {
		evt = evt.Str(FieldTarget, e.Target)
	}
	if e.Detail != "" {
		evt = evt.Str(FieldDetail, e.Detail)
	}
	evt.Msg(msg)
}
