package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/faheemlabs/faheem/pkg/errorsx"
)

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	FileData *fileData `json:"fileData,omitempty"`
	Text     string    `json:"text,omitempty"`
}

type fileData struct {
	MimeType string `json:"mimeType"`
	FileURI  string `json:"fileUri"`
}

type streamChunk struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// StreamGenerateContent opens a streamed inference call referencing an
// uploaded file and forwards each received text fragment to onText in
// emission order. It returns once the stream ends.
func (c *Client) StreamGenerateContent(ctx context.Context, fileURI, fileMime, prompt string, onText func(string)) error {
	payload, err := json.Marshal(generateRequest{
		Contents: []content{{
			Parts: []part{
				{FileData: &fileData{MimeType: fileMime, FileURI: fileURI}},
				{Text: prompt},
			},
		}},
	})
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/v1beta/models/%s:streamGenerateContent?alt=sse", c.cfg.Model)
	req, err := c.newRequest(ctx, http.MethodPost, path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTranscriptionRequest)
	}
	defer resp.Body.Close()
	if !isSuccess(resp.StatusCode) {
		return errorsx.Wrap(statusError(resp), errorsx.ReasonTranscriptionRequest)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	fragments := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.logger.Warn("skipping malformed stream chunk", slog.String("error", err.Error()))
			continue
		}
		if chunk.PromptFeedback != nil && chunk.PromptFeedback.BlockReason != "" {
			return errorsx.Wrap(
				fmt.Errorf("stream blocked: blockReason: %s", chunk.PromptFeedback.BlockReason),
				errorsx.ReasonSafetyTermination,
			)
		}
		for _, cand := range chunk.Candidates {
			for _, p := range cand.Content.Parts {
				if p.Text != "" {
					onText(p.Text)
					fragments++
				}
			}
			if cand.FinishReason == "SAFETY" {
				return errorsx.Wrap(
					fmt.Errorf("stream terminated: finishReason: SAFETY"),
					errorsx.ReasonSafetyTermination,
				)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return errorsx.Wrap(fmt.Errorf("read stream: %w", err), errorsx.ReasonTranscriptionRequest)
	}
	c.logger.Debug("stream complete", slog.Int("fragments", fragments))
	return nil
}
