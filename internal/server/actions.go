package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mohammad-safakhou/voiceforth/internal/session"
)

// ErrMalformedRequest marks a webhook body that cannot be decoded or carries
// no utterance.
var ErrMalformedRequest = errors.New("malformed conversation request")

// IntentText is the only intent the bridge asks the assistant for.
const IntentText = "actions.intent.TEXT"

// SpeechBiasingHints nudges speech recognition towards interpreter
// vocabulary.
var SpeechBiasingHints = []string{
	":", ";", ".", ",", "+", "-", "*", "/", "*/",
	"dup", "drop", "swap", "over", "rot", "-rot", "emit", "cr",
}

// AppRequest is the subset of the conversation webhook request the bridge
// reads.
type AppRequest struct {
	User         AppUser         `json:"user"`
	Conversation AppConversation `json:"conversation"`
	Inputs       []AppInput      `json:"inputs"`
}

type AppUser struct {
	UserStorage string `json:"userStorage"`
	Locale      string `json:"locale,omitempty"`
}

type AppConversation struct {
	ConversationID string `json:"conversationId,omitempty"`
	Type           string `json:"type,omitempty"`
}

type AppInput struct {
	Intent    string     `json:"intent,omitempty"`
	RawInputs []RawInput `json:"rawInputs"`
}

type RawInput struct {
	InputType string `json:"inputType,omitempty"`
	Query     string `json:"query"`
}

// DecodeAppRequest reads one webhook request body.
func DecodeAppRequest(r io.Reader) (AppRequest, error) {
	var req AppRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return AppRequest{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if len(req.Inputs) == 0 || len(req.Inputs[0].RawInputs) == 0 {
		return AppRequest{}, fmt.Errorf("%w: no raw input", ErrMalformedRequest)
	}
	return req, nil
}

// Turn maps the envelope onto a session request. The conversation id keys
// the caller; remote is used when the front end sent none.
func (r AppRequest) Turn(remote string) session.Request {
	caller := r.Conversation.ConversationID
	if caller == "" {
		caller = remote
	}
	return session.Request{
		Token:     r.User.UserStorage,
		Utterance: r.Inputs[0].RawInputs[0].Query,
		Caller:    caller,
	}
}

// AppResponse is the conversation webhook reply.
type AppResponse struct {
	ConversationToken  string          `json:"conversationToken"`
	UserStorage        string          `json:"userStorage"`
	ExpectUserResponse bool            `json:"expectUserResponse"`
	ExpectedInputs     []ExpectedInput `json:"expectedInputs,omitempty"`
	// FinalResponse replaces ExpectedInputs when the conversation ends.
	FinalResponse *FinalResponse `json:"finalResponse,omitempty"`
}

type FinalResponse struct {
	RichResponse RichResponse `json:"richResponse"`
}

type ExpectedInput struct {
	InputPrompt        InputPrompt      `json:"inputPrompt"`
	PossibleIntents    []ExpectedIntent `json:"possibleIntents"`
	SpeechBiasingHints []string         `json:"speechBiasingHints"`
}

type InputPrompt struct {
	RichInitialPrompt RichResponse `json:"richInitialPrompt"`
}

type RichResponse struct {
	Items       []RichItem   `json:"items"`
	Suggestions []Suggestion `json:"suggestions"`
}

type RichItem struct {
	SimpleResponse SimpleResponse `json:"simpleResponse"`
}

type SimpleResponse struct {
	TextToSpeech string `json:"textToSpeech"`
	DisplayText  string `json:"displayText"`
}

type Suggestion struct {
	Title string `json:"title"`
}

type ExpectedIntent struct {
	Intent string `json:"intent"`
}

// NewAppResponse wraps a session reply in the webhook envelope.
func NewAppResponse(reply session.Reply) AppResponse {
	rich := RichResponse{
		Items: []RichItem{{SimpleResponse: SimpleResponse{
			TextToSpeech: reply.Speech,
			DisplayText:  reply.Display,
		}}},
		Suggestions: []Suggestion{},
	}
	resp := AppResponse{
		UserStorage:        reply.Token,
		ExpectUserResponse: reply.ExpectUserResponse,
	}
	if !reply.ExpectUserResponse {
		resp.FinalResponse = &FinalResponse{RichResponse: rich}
		return resp
	}
	resp.ExpectedInputs = []ExpectedInput{{
		InputPrompt:        InputPrompt{RichInitialPrompt: rich},
		PossibleIntents:    []ExpectedIntent{{Intent: IntentText}},
		SpeechBiasingHints: SpeechBiasingHints,
	}}
	return resp
}
