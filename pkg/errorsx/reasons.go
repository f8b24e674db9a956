package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonRecorderPermission ReasonCode = "recorder_permission_denied"
	ReasonRecorderDevice     ReasonCode = "recorder_device_unavailable"
	ReasonRecorderState      ReasonCode = "recorder_invalid_state"

	ReasonSTTTransport  ReasonCode = "stt_transport"
	ReasonChatTransport ReasonCode = "chat_transport"
	ReasonTTSTransport  ReasonCode = "tts_transport"

	ReasonPipelineBusy       ReasonCode = "pipeline_busy"
	ReasonPipelineNoArtifact ReasonCode = "pipeline_no_artifact"

	ReasonBackendBadRequest ReasonCode = "backend_bad_request"
	ReasonBackendProvider   ReasonCode = "backend_provider"

	ReasonConfigInvalid ReasonCode = "config_invalid"
)
