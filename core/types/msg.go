package types

import "time"

// MessageInfo carries the caller and the funds attached to an execution.
type MessageInfo struct {
	Sender string `json:"sender"`
	Funds  Coins  `json:"funds"`
}

// BlockInfo is the execution environment of a transaction.
type BlockInfo struct {
	Height uint64    `json:"height"`
	Time   time.Time `json:"time"`
}

// CosmosMsg is a message produced by a module for the host to dispatch after
// the module returns. The host executes it inside the same transaction.
type CosmosMsg interface {
	MsgType() string
}

const (
	MsgTypeBankSend    = "bank_send"
	MsgTypeFillRewards = "fill_rewards"
)

// BankSend transfers coins from the executing module account to To.
type BankSend struct {
	To     string `json:"to"`
	Amount Coins  `json:"amount"`
}

func (BankSend) MsgType() string { return MsgTypeBankSend }

// FillRewards forwards coins to the bonding manager's upcoming reward bucket.
type FillRewards struct {
	Amount Coins `json:"amount"`
}

func (FillRewards) MsgType() string { return MsgTypeFillRewards }

// Response is what a module returns from an execution.
type Response struct {
	Messages   []CosmosMsg       `json:"-"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Data       any               `json:"data,omitempty"`
}

// NewResponse returns an empty response carrying an action attribute.
func NewResponse(action string) *Response {
	return &Response{Attributes: map[string]string{"action": action}}
}

func (r *Response) AddMessage(msg CosmosMsg) *Response {
	r.Messages = append(r.Messages, msg)
	return r
}

func (r *Response) AddAttribute(key, value string) *Response {
	if r.Attributes == nil {
		r.Attributes = make(map[string]string)
	}
	r.Attributes[key] = value
	return r
}
