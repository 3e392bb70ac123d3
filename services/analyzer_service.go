package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"personality_engine/config"
	"personality_engine/logger"
	"personality_engine/models"
)

// 定义LLM API请求和响应结构
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// LLMAnalyzer 基于LLM的行为分析器
// 显式构造、按引用注入，不使用进程级单例；HTTP客户端带超时由构造时确定
type LLMAnalyzer struct {
	cfg    *config.Config
	client *http.Client
}

// NewLLMAnalyzer 创建行为分析器
func NewLLMAnalyzer(cfg *config.Config) *LLMAnalyzer {
	timeout := time.Duration(cfg.Analyzer.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LLMAnalyzer{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// AnalyzeUserBehavior 分析用户行为并返回结构化的特征分析结果
// 要求LLM直接输出JSON，自由文本解析止步于此边界，引擎只消费类型化结果
func (a *LLMAnalyzer) AnalyzeUserBehavior(ctx context.Context, userID string, events []models.BehaviorEvent) (models.TraitAnalysisSummary, error) {
	if a.cfg.Analyzer.APIKey == "" || a.cfg.Analyzer.BaseURL == "" {
		return nil, fmt.Errorf("行为分析器未配置")
	}
	if len(events) == 0 {
		return models.TraitAnalysisSummary{}, nil
	}

	prompt := buildAnalysisPrompt(userID, events)
	content, err := a.callChatAPI(ctx, prompt)
	if err != nil {
		return nil, err
	}

	jsonContent := extractJSONFromText(content)

	var summary models.TraitAnalysisSummary
	if err := json.Unmarshal([]byte(jsonContent), &summary); err != nil {
		logger.Error("解析行为分析结果失败", "user_id", userID, "error", err)
		return nil, fmt.Errorf("解析行为分析结果失败: %w", err)
	}

	logger.Info("行为分析完成", "user_id", userID, "traits", len(summary))
	return summary, nil
}

// buildAnalysisPrompt 构建行为分析提示词
func buildAnalysisPrompt(userID string, events []models.BehaviorEvent) string {
	var sb strings.Builder
	sb.WriteString("请分析以下用户行为数据，将行为与性格特征关联，并以JSON格式输出分析结果。\n\n")
	sb.WriteString(fmt.Sprintf("用户ID：%s\n\n[用户行为数据]\n", userID))

	for _, ev := range events {
		sb.WriteString(fmt.Sprintf("时间：%s 行为：%s 内容类型：%s 关联特征：%s\n",
			ev.Timestamp, ev.InteractionType, ev.ContentType, strings.Join(ev.AssociatedTraits, "、")))
	}

	sb.WriteString(`
输出要求：只输出一个JSON对象，键为性格特征名，值包含：
- related_behaviors: 相关行为列表
- behavior_strength: 行为强度，取值：低/较低/中/较高/高
- impact_level: 影响程度，取值：低/中/高

示例：
{"开放性": {"related_behaviors": ["like"], "behavior_strength": "中", "impact_level": "高"}}`)

	return sb.String()
}

// callChatAPI 调用chat completions API并返回生成内容
func (a *LLMAnalyzer) callChatAPI(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model: a.cfg.Analyzer.Model,
		Messages: []chatMessage{
			{
				Role:    "user",
				Content: prompt,
			},
		},
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.cfg.Analyzer.BaseURL+"/v1/chat/completions", bytes.NewBuffer(reqJSON))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.Analyzer.APIKey)

	startTime := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		logger.Error("发送分析请求失败", "error", err, "duration_ms", time.Since(startTime).Milliseconds())
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		responsePreview := string(body)
		if len(responsePreview) > 500 {
			responsePreview = responsePreview[:500] + "..."
		}
		logger.Error("分析API请求失败", "status", resp.StatusCode, "response", responsePreview)
		return "", fmt.Errorf("分析API请求失败: %d", resp.StatusCode)
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", err
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("API响应中没有内容")
	}

	logger.Info("成功获取分析响应",
		"tokens_total", cr.Usage.TotalTokens,
		"finish_reason", cr.Choices[0].FinishReason,
		"duration_ms", time.Since(startTime).Milliseconds())

	return cr.Choices[0].Message.Content, nil
}

// extractJSONFromText 从文本中提取JSON部分
func extractJSONFromText(text string) string {
	// 优先查找```json和```之间的内容
	startMarker := "```json"
	endMarker := "```"
	if startIdx := strings.Index(text, startMarker); startIdx >= 0 {
		startIdx += len(startMarker)
		if endIdx := strings.Index(text[startIdx:], endMarker); endIdx > 0 {
			return strings.TrimSpace(text[startIdx : startIdx+endIdx])
		}
	}

	// 退回到第一个{和最后一个}之间的内容
	startIdx := strings.Index(text, "{")
	endIdx := strings.LastIndex(text, "}")
	if startIdx >= 0 && endIdx > startIdx {
		return text[startIdx : endIdx+1]
	}

	logger.Warn("无法从文本中提取JSON部分，返回原始文本")
	return text
}
