package stage

// Canonical stage names in pipeline order.
const (
	NameDownload   = "download"
	NameTranscribe = "transcribe"
	NameTranslate  = "translate"
	NameScenePlan  = "scene_plan"
	NameImageSynth = "synthesize_images"
	NameCompose    = "compose_video"
)

// Artifact kinds committed by each stage.
const (
	KindAudio      = "audio"
	KindTranscript = "transcript"
	KindTranslated = "translated_transcript"
	KindScenePlan  = "scene_plan"
	KindImages     = "image_manifest"
	KindReel       = "reel"
	KindSubtitles  = "subtitles"
)

// Order returns the canonical pipeline order. Every stage commits an
// artifact, including translate, which commits a skip marker when the
// subtitle mode needs no English track.
func Order() []string {
	return []string{
		NameDownload,
		NameTranscribe,
		NameTranslate,
		NameScenePlan,
		NameImageSynth,
		NameCompose,
	}
}

// KindFor maps a stage to the artifact kind that marks it complete.
func KindFor(name string) string {
	switch name {
	case NameDownload:
		return KindAudio
	case NameTranscribe:
		return KindTranscript
	case NameTranslate:
		return KindTranslated
	case NameScenePlan:
		return KindScenePlan
	case NameImageSynth:
		return KindImages
	case NameCompose:
		return KindReel
	default:
		return ""
	}
}
