package main

import (
	"fmt"
	"os"

	"github.com/mklatt/scribe/audio"
	"github.com/mklatt/scribe/client"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "scribe",
	Short:        "Stream a WAV file to a scribe server and print the transcript",
	Long:         `Converts a 16-bit WAV file to 16 kHz mono PCM, streams it to the WebSocket endpoint, and prints transcript chunks as they arrive. TTFB/RTF stats go to stderr.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().String("url", "ws://localhost:2020/stream", "WebSocket URL of the streaming endpoint")
	rootCmd.Flags().String("audio", "", "Path to a 16-bit WAV file (resampled to 16 kHz mono if needed)")
	rootCmd.Flags().Int("chunk", client.DefaultChunkSize, "Bytes per binary audio frame")
	rootCmd.Flags().Bool("no-stats", false, "Do not print TTFB/RTF to stderr")
	rootCmd.MarkFlagRequired("audio")
}

func run(cmd *cobra.Command, args []string) error {
	url, _ := cmd.Flags().GetString("url")
	audioPath, _ := cmd.Flags().GetString("audio")
	chunkSize, _ := cmd.Flags().GetInt("chunk")
	noStats, _ := cmd.Flags().GetBool("no-stats")

	wav, err := audio.ReadWAVFile(audioPath)
	if err != nil {
		return fmt.Errorf("reading wav: %w", err)
	}
	pcm := wav.ToPCM16kMono()

	c := client.NewClient(client.Options{
		URL:       url,
		ChunkSize: chunkSize,
	})

	result, err := c.Stream(cmd.Context(), pcm, func(text string) {
		fmt.Print(text)
	})
	if err != nil {
		return err
	}
	fmt.Println()

	if !noStats {
		ttfb := "N/A"
		if result.TTFBValid {
			ttfb = fmt.Sprintf("%.3fs", result.TTFB.Seconds())
		}
		fmt.Fprintf(os.Stderr, "TTFB: %s  RTF: %.3f  (audio: %.2fs)\n",
			ttfb, result.RTF, result.AudioDuration.Seconds())
	}

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
