package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/localpilot/types"
)

const maxBodyBytes = 1 << 20

func noBody(r *http.Request) bool {
	return r.Body == nil || r.Body == http.NoBody
}

// DecodeJSONBody 解码请求体到 dst，限制 1MB 并拒绝未知字段。
// 失败时已经写出 400，调用方直接返回即可。
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if noBody(r) {
		err := types.NewError(types.ErrInvalidRequest, "request body is empty")
		WriteError(w, err, logger)
		return err
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	if err == nil {
		return nil
	}

	msg := "invalid JSON body"
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		msg = "request body too large"
	}
	apiErr := types.NewError(types.ErrInvalidRequest, msg).WithCause(err).WithHTTPStatus(http.StatusBadRequest)
	WriteError(w, apiErr, logger)
	return apiErr
}

// DecodeOptionalJSONBody 只在请求带有请求体时解码
func DecodeOptionalJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if noBody(r) || r.ContentLength == 0 {
		return nil
	}
	return DecodeJSONBody(w, r, dst, logger)
}

// ValidateContentType 要求 application/json，charset 只接受 utf-8
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	mt, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	ok := err == nil && mt == "application/json"
	if cs := params["charset"]; ok && cs != "" {
		ok = strings.EqualFold(cs, "utf-8")
	}
	if !ok {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "Content-Type must be application/json"), logger)
	}
	return ok
}
