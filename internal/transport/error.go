package transport

import (
	"fmt"

	"telemetry/pkg/envelope"
)

// Delivery error codes observed by the producer pipeline.
const (
	CodeEncodingFailed     = "encoding_failed"
	CodeTransportError     = "transport_error"
	CodeTransportException = "transport_exception"
	CodeEmptyResponse      = "empty_response"
	CodeInvalidAckPayload  = "invalid_ack_payload"
	CodeServerError        = "server_error"
	CodeAckRejected        = "ack_rejected"
)

// DeliveryError classifies a failed send. A non-retryable delivery error is
// never requeued regardless of the remaining attempt budget.
type DeliveryError struct {
	Code              string
	Message           string
	Retryable         bool
	RetryAfterSeconds int
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func retryableError(code, message string) *DeliveryError {
	return &DeliveryError{Code: code, Message: message, Retryable: true}
}

func permanentError(code, message string) *DeliveryError {
	return &DeliveryError{Code: code, Message: message}
}

// fromWireError converts a receiver-embedded error object. The embedded
// retryable flag always overrides the conservative non-retryable default,
// and a millisecond retry hint is folded into whole seconds.
func fromWireError(we *envelope.WireError) *DeliveryError {
	code := we.Code
	if code == "" {
		code = CodeServerError
	}
	derr := &DeliveryError{
		Code:              code,
		Message:           we.Message,
		RetryAfterSeconds: we.RetryAfterSeconds,
	}
	if we.Retryable != nil {
		derr.Retryable = *we.Retryable
	}
	if derr.RetryAfterSeconds == 0 && we.RetryAfterMS > 0 {
		derr.RetryAfterSeconds = int((we.RetryAfterMS + 999) / 1000)
	}
	if derr.RetryAfterSeconds < 0 {
		derr.RetryAfterSeconds = 0
	}
	return derr
}

// fromRejectedAck converts an explicit ack rejection.
func fromRejectedAck(ack *envelope.Ack) *DeliveryError {
	code := CodeAckRejected
	message := "receiver rejected the envelope"
	if ack.Code != "" {
		message = fmt.Sprintf("receiver rejected the envelope: %s", ack.Code)
	}
	derr := permanentError(code, message)
	if ack.Retryable != nil {
		derr.Retryable = *ack.Retryable
	}
	return derr
}
