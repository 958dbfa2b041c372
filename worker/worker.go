package worker

import "strconv"

const DefaultBinary = "qwen_asr"

// Command describes how to invoke the transcription engine.
type Command struct {
	Path string
	Args []string
}

// ASRArgs builds the engine's invocation arguments: model directory, audio
// from stdin, streaming output, and an optional thread-count override.
func ASRArgs(modelDir string, threads int) []string {
	args := []string{"-d", modelDir, "--stdin", "--stream"}
	if threads > 0 {
		args = append(args, "-t", strconv.Itoa(threads))
	}
	return args
}
