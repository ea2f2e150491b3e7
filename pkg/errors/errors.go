// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeStoreConversationGetNotFound Code = "store.conversation.get.not_found"
	CodeStoreProposalGetNotFound     Code = "store.proposal.get.not_found"
	CodeStoreProposalUpdateConflict  Code = "store.proposal.update.conflict"
	CodeStoreToolCallGetNotFound     Code = "store.tool_call.get.not_found"
	CodeStoreMemoryGetNotFound       Code = "store.memory.get.not_found"
	CodeStoreMessageAppendInvalid    Code = "store.message.append.invalid_input"
	CodeStoreDatabaseFailure         Code = "store.database.failure"
	CodeStoreBackendUnsupported      Code = "store.backend.unsupported"
	CodeStoreConflict                Code = "store.conflict"
	CodeStoreInvalidInput            Code = "store.invalid_input"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"
	CodeConfigAlreadyExists        Code = "config.write.conflict"

	CodeSecretInvalidInput   Code = "secret.input.invalid_input"
	CodeSecretNotFound       Code = "secret.get.not_found"
	CodeSecretStoreFailure   Code = "secret.store.failure"
	CodeSecretDeleteFailure  Code = "secret.delete.failure"
	CodeSecretListFailure    Code = "secret.list.failure"
	CodeSecretResolveFailure Code = "secret.resolve.failure"

	CodeToolRegistryNotFound  Code = "tool.registry.not_found"
	CodeToolRegistryConflict  Code = "tool.registry.conflict"
	CodeToolDefinitionInvalid Code = "tool.definition.invalid"
	CodeToolSchemaInvalid     Code = "tool.schema.invalid"
	CodeToolExecuteFailure    Code = "tool.execute.failure"
	CodeToolExecuteTimeout    Code = "tool.execute.timeout"
	CodeToolInputInvalid      Code = "tool.input.invalid_input"
	CodeToolOutputBlocked     Code = "tool.output.blocked"

	CodeScannerRuleInvalid Code = "scanner.rule.invalid"

	CodeSandboxPathDenied              Code = "sandbox.path.denied"
	CodeSandboxPathInvalid             Code = "sandbox.path.invalid"
	CodeSandboxCommandDenied           Code = "sandbox.command.denied"
	CodeSandboxCommandApprovalRequired Code = "sandbox.command.approval_required"
	CodeSandboxCommandTimeout          Code = "sandbox.command.timeout"
	CodeSandboxCommandFailure          Code = "sandbox.command.failure"
	CodeSandboxConfigInvalid           Code = "sandbox.config.invalid"
	CodeSandboxIsolationUnsupported    Code = "sandbox.isolation.unsupported"

	CodeCapabilityManifestInvalid    Code = "capability.manifest.validate.invalid"
	CodeCapabilityLoadFailure        Code = "capability.load.failure"
	CodeCapabilityRuntimeFailure     Code = "capability.runtime.call.failure"
	CodeCapabilityRuntimeUnsupported Code = "capability.runtime.unsupported"
	CodeCapabilityTransitionInvalid  Code = "capability.lifecycle.transition.invalid"
	CodeCapabilityNotFound           Code = "capability.get.not_found"
	CodeCapabilityRestartRequired    Code = "capability.activate.restart_required"
	CodeCapabilityDiscoveryFailure   Code = "capability.discovery.failure"

	CodeProposalInputInvalid      Code = "proposal.input.invalid_input"
	CodeProposalTransitionInvalid Code = "proposal.transition.invalid"
	CodeProposalTestFailure       Code = "proposal.test.failure"
	CodeProposalActivateFailure   Code = "proposal.activate.failure"

	CodeMemoryInputInvalid Code = "memory.entry.invalid_input"
	CodeMemoryNotFound     Code = "memory.entry.not_found"

	CodeProviderRequestInvalid       Code = "provider.request.invalid"
	CodeProviderResponseInvalid      Code = "provider.response.invalid"
	CodeProviderUpstreamFailure      Code = "provider.upstream.failure"
	CodeProviderUpstreamTimeout      Code = "provider.upstream.timeout"
	CodeProviderRateLimited          Code = "provider.upstream.rate_limited"
	CodeProviderAuthUnauthorized     Code = "provider.auth.unauthorized"
	CodeProviderContentPolicy        Code = "provider.content_policy.denied"
	CodeProviderBudgetExceeded       Code = "provider.budget.exceeded"
	CodeProviderNotFound             Code = "provider.registry.not_found"
	CodeProviderAllUnavailable       Code = "provider.routing.all_unavailable"
	CodeProviderNoDefault            Code = "provider.routing.no_default"
	CodeProviderInvalidModelRef      Code = "provider.routing.invalid_model_ref"
	CodeProviderKeyValidationFailure Code = "provider.key.validate.invalid"

	CodeAgentLoopInvalidInput Code = "agent.loop.invalid_input"
	CodeAgentLoopFailure      Code = "agent.loop.failure"
	CodeAgentBudgetExceeded   Code = "agent.budget.exceeded"
	CodeAgentLaneClosed       Code = "agent.lane.closed"

	CodeServerRequestInvalid   Code = "server.request.invalid"
	CodeServerAuthUnauthorized Code = "server.auth.unauthorized"
	CodeServerInternalFailure  Code = "server.internal.failure"
	CodeServerEntityNotFound   Code = "server.entity.not_found"
	CodeServerConfigInvalid    Code = "server.config.invalid"
	CodeServerStartFailure     Code = "server.start.failure"
	CodeServerShutdownFailure  Code = "server.shutdown.failure"

	CodeCLIGatewayNotRunning Code = "cli.gateway.not_running"
	CodeCLIRequestFailure    Code = "cli.request.failure"
	CodeCLIResponseInvalid   Code = "cli.response.invalid"
	CodeCLISetupFailure      Code = "cli.setup.failure"
	CodeCLIInputInvalid      Code = "cli.input.invalid"
)

// Field is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func FieldValue(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

// Field is kept as the primary helper for terse callsites.
func Field(key string, value any) Attr {
	return FieldValue(key, value)
}

func FieldConversationID(value string) Attr {
	return Field("conversation_id", value)
}

func FieldTool(value string) Attr {
	return Field("tool", value)
}

func FieldCapability(value string) Attr {
	return Field("capability", value)
}

func FieldProposalID(value string) Attr {
	return Field("proposal_id", value)
}

func FieldPath(value string) Attr {
	return Field("path", value)
}

func FieldProvider(value string) Attr {
	return Field("provider", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsConflict(err error) bool {
	return reason(CodeOf(err)) == "conflict"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func IsUnauthorized(err error) bool {
	r := reason(CodeOf(err))
	return r == "unauthorized" || r == "forbidden" || r == "denied"
}

func IsBudgetExceeded(err error) bool {
	r := reason(CodeOf(err))
	return r == "exceeded" || r == "budget_exceeded"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

// IsRateLimited reports whether err is a provider throttling response.
func IsRateLimited(err error) bool {
	return reason(CodeOf(err)) == "rate_limited"
}

// IsApprovalRequired reports whether the operation needs an explicit
// approval flag to proceed.
func IsApprovalRequired(err error) bool {
	return reason(CodeOf(err)) == "approval_required"
}

// IsRetryable reports whether a provider failure is transient. Auth and
// content-policy failures never are.
func IsRetryable(err error) bool {
	return IsRateLimited(err) || IsTimeout(err) || IsUpstreamFailure(err)
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && reason(code) == "failure"
}

func HTTPStatus(err error) int {
	switch {
	case IsApprovalRequired(err):
		return http.StatusPreconditionRequired
	case IsRateLimited(err):
		return http.StatusTooManyRequests
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsUnauthorized(err):
		if reason(CodeOf(err)) == "forbidden" || reason(CodeOf(err)) == "denied" {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case IsBudgetExceeded(err):
		return http.StatusTooManyRequests
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsUpstreamFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
