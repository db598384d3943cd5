package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
)

// 中文说明：LLM 交互专用日志。与主日志分流到独立文件，
// 按 [LLM][kind][provider][purpose] 分段落打印请求与响应原文，
// payload 级别的完整 JSON 只有显式开启 dump 后才写入。

var (
	llmMu       sync.Mutex
	llmLog      *log.Logger
	dumpPayload bool
)

// SetLLMWriter 传 nil 时关闭 LLM 日志。
func SetLLMWriter(w io.Writer) {
	llmMu.Lock()
	defer llmMu.Unlock()
	if w == nil {
		llmLog = nil
		return
	}
	llmLog = log.New(w, "", log.LstdFlags)
}

func EnableLLMPayloadDump(enabled bool) {
	llmMu.Lock()
	dumpPayload = enabled
	llmMu.Unlock()
}

type llmSection struct {
	Title string
	Body  string
}

func writeLLM(kind, provider, purpose string, sections []llmSection) {
	llmMu.Lock()
	sink := llmLog
	llmMu.Unlock()
	if sink == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[LLM]")
	for _, tag := range []string{kind, provider, purpose} {
		if tag == "" {
			continue
		}
		b.WriteString("[")
		b.WriteString(tag)
		b.WriteString("]")
	}
	b.WriteString("\n")
	for _, sec := range sections {
		title := strings.TrimSpace(sec.Title)
		if title == "" {
			title = "CONTENT"
		}
		b.WriteString("--- ")
		b.WriteString(title)
		b.WriteString(" ---\n")
		b.WriteString(sec.Body)
		if !strings.HasSuffix(sec.Body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	sink.Print(b.String())
}

func LogLLMRequest(kind, provider, purpose, systemPrompt, userPrompt string, images []string, payload string) {
	sections := []llmSection{
		{Title: "SYSTEM", Body: systemPrompt},
		{Title: "USER", Body: userPrompt},
	}
	for i, img := range images {
		sections = append(sections, llmSection{Title: fmt.Sprintf("IMAGE#%d", i+1), Body: img})
	}
	if dumpPayload && strings.TrimSpace(payload) != "" {
		sections = append(sections, llmSection{Title: "PAYLOAD", Body: payload})
	}
	writeLLM(kind+"-request", provider, purpose, sections)
}

func LogLLMResponse(kind, provider, purpose, raw string) {
	writeLLM(kind+"-response", provider, purpose, []llmSection{{Title: "RAW", Body: raw}})
}

func LogLLMPayload(provider, payload string) {
	if !dumpPayload {
		return
	}
	text := strings.TrimSpace(payload)
	if text == "" {
		return
	}
	writeLLM("payload", provider, "request", []llmSection{{Title: "PAYLOAD", Body: text}})
}
