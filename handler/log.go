package handler

import (
	"fmt"
	"log"
	"time"
)

func (h *handler) logRequestIn() {
	msg := fmt.Sprintf(
		"%s > %s %s %s %d",
		h.RunID,
		h.Request.RemoteAddr,
		h.Request.Method,
		h.Request.URL,
		len(h.RequestBody),
	)
	log.Println(msg)
	h.addTestAccessLogEntry(msg)
}

func (h *handler) logResponseWriteErr(err error) {
	msg := fmt.Sprintf(
		"%s !! failed to send response to %s %s %s -> %v",
		h.RunID,
		h.Request.RemoteAddr,
		h.Request.Method,
		h.Request.URL,
		err,
	)
	log.Println(msg)
	h.addTestAccessLogEntry(msg)
}

func (h *handler) logResponseOut() {
	msg := fmt.Sprintf(
		"%s < %s %s %s %d -> %d %d in %v",
		h.RunID,
		h.Request.RemoteAddr,
		h.Request.Method,
		h.Request.URL,
		len(h.RequestBody),
		h.ResponseStatusCode,
		len(h.ResponseBody),
		time.Since(h.Start),
	)
	log.Println(msg)
	h.addTestAccessLogEntry(msg)
}

func (h *handler) addTestAccessLogEntry(msg string) {
	if !h.testCaptureAccessLog {
		return
	}
	h.testAccessLogMutex.Lock()
	h.testAccessLog = append(h.testAccessLog, msg)
	h.testAccessLogMutex.Unlock()
}

// accessLog returns a copy of the captured access log
func (h *Handler) accessLog() []string {
	h.testAccessLogMutex.Lock()
	defer h.testAccessLogMutex.Unlock()
	return append([]string{}, h.testAccessLog...)
}
