package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
)

// State is the backend-side processing state of an uploaded file.
type State string

const (
	StateProcessing State = "PROCESSING"
	StateActive     State = "ACTIVE"
	StateFailed     State = "FAILED"
)

// FileInfo mirrors the backend's file resource. Name is the opaque
// resource identifier (e.g. "files/abc123").
type FileInfo struct {
	Name        string     `json:"name"`
	URI         string     `json:"uri"`
	MimeType    string     `json:"mimeType"`
	State       State      `json:"state"`
	DisplayName string     `json:"displayName"`
	Error       *FileError `json:"error,omitempty"`
}

// FileError is the backend-supplied failure detail on a FAILED file.
type FileError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (e *FileError) Detail() string {
	if e == nil {
		return "unknown error"
	}
	data, err := json.Marshal(e)
	if err != nil {
		return e.Message
	}
	return string(data)
}

// ErrMissingLocation means the resumable session response carried no
// Location header, so the session location cannot be derived.
var ErrMissingLocation = errors.New("upload session response missing location header")

const (
	pathResumable = "/upload/v1beta/files?uploadType=resumable"
	pathMultipart = "/upload/v1beta/files?uploadType=multipart"
	pathDirect    = "/upload/v1beta/files?uploadType=media"
)

type fileRequest struct {
	File fileRequestBody `json:"file"`
}

type fileRequestBody struct {
	DisplayName string `json:"displayName"`
	MimeType    string `json:"mimeType"`
}

// StartResumableUpload opens a resumable upload session with a
// metadata-only POST and returns the session location.
func (c *Client) StartResumableUpload(ctx context.Context, displayName, mimeType string) (string, error) {
	payload, err := json.Marshal(fileRequest{File: fileRequestBody{DisplayName: displayName, MimeType: mimeType}})
	if err != nil {
		return "", err
	}
	req, err := c.newRequest(ctx, http.MethodPost, pathResumable, "application/json; charset=UTF-8", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if !isSuccess(resp.StatusCode) {
		return "", statusError(resp)
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return "", ErrMissingLocation
	}
	c.logger.Debug("resumable session opened", slog.String("display_name", displayName))
	return location, nil
}

// UploadToLocation streams the raw file bytes to a resumable session
// location. Absolute locations are reduced to path+query so the transfer
// stays on the relay.
func (c *Client) UploadToLocation(ctx context.Context, location, mimeType string, body io.Reader) (FileInfo, error) {
	path := location
	if u, err := url.Parse(location); err == nil && u.IsAbs() {
		path = u.Path
		if u.RawQuery != "" {
			path += "?" + u.RawQuery
		}
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, mimeType, body)
	if err != nil {
		return FileInfo{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return FileInfo{}, err
	}
	defer resp.Body.Close()
	if !isSuccess(resp.StatusCode) {
		return FileInfo{}, statusError(resp)
	}
	return decodeFileResponse(resp.Body)
}

// UploadMultipart bundles the JSON metadata and the raw bytes as two
// named parts in a single request.
func (c *Client) UploadMultipart(ctx context.Context, displayName, mimeType string, body io.Reader) (FileInfo, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeMultipartBody(mw, displayName, mimeType, body)
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, pathMultipart, mw.FormDataContentType(), pr)
	if err != nil {
		return FileInfo{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return FileInfo{}, err
	}
	defer resp.Body.Close()
	if !isSuccess(resp.StatusCode) {
		return FileInfo{}, statusError(resp)
	}
	return decodeFileResponse(resp.Body)
}

func writeMultipartBody(mw *multipart.Writer, displayName, mimeType string, body io.Reader) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="metadata"`)
	header.Set("Content-Type", "application/json")
	metaPart, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(metaPart).Encode(fileRequest{File: fileRequestBody{DisplayName: displayName, MimeType: mimeType}}); err != nil {
		return err
	}

	header = textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="data"; filename=%q`, displayName))
	header.Set("Content-Type", mimeType)
	dataPart, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(dataPart, body)
	return err
}

// UploadDirect sends the raw bytes in one simplified call.
func (c *Client) UploadDirect(ctx context.Context, mimeType string, body io.Reader) (FileInfo, error) {
	req, err := c.newRequest(ctx, http.MethodPost, pathDirect, mimeType, body)
	if err != nil {
		return FileInfo{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return FileInfo{}, err
	}
	defer resp.Body.Close()
	if !isSuccess(resp.StatusCode) {
		return FileInfo{}, statusError(resp)
	}
	return decodeFileResponse(resp.Body)
}

// GetFile fetches the current metadata of a file resource.
func (c *Client) GetFile(ctx context.Context, name string) (FileInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1beta/"+name, "", nil)
	if err != nil {
		return FileInfo{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return FileInfo{}, err
	}
	defer resp.Body.Close()
	if !isSuccess(resp.StatusCode) {
		return FileInfo{}, statusError(resp)
	}
	var info FileInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return FileInfo{}, fmt.Errorf("decode file metadata: %w", err)
	}
	return info, nil
}

// DeleteFile removes an uploaded file resource.
func (c *Client) DeleteFile(ctx context.Context, name string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/v1beta/"+name, "", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if !isSuccess(resp.StatusCode) {
		return statusError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// decodeFileResponse accepts both the wrapped ({"file": {...}}) and the
// top-level file metadata shapes the upload endpoints produce.
func decodeFileResponse(r io.Reader) (FileInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return FileInfo{}, err
	}
	var wrapper struct {
		File *FileInfo `json:"file"`
	}
	if err := json.Unmarshal(data, &wrapper); err == nil && wrapper.File != nil && wrapper.File.Name != "" {
		return *wrapper.File, nil
	}
	var info FileInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return FileInfo{}, fmt.Errorf("decode upload response: %w", err)
	}
	if info.Name == "" {
		return FileInfo{}, errors.New("upload response missing file name")
	}
	return info, nil
}
