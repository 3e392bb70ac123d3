package utils

import (
	"encoding/json"
	"net/http"

	"personality_engine/models"
)

// WriteFormattedJSON 格式化JSON输出，使其更易读
func WriteFormattedJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "    ") // 使用4个空格缩进
	encoder.Encode(data)
}

// WriteSuccessResponse 写入成功响应
func WriteSuccessResponse(w http.ResponseWriter, data interface{}) {
	WriteFormattedJSON(w, models.NewSuccessResponse(data))
}

// WriteErrorResponse 写入错误响应
func WriteErrorResponse(w http.ResponseWriter, code int, data interface{}) {
	WriteFormattedJSON(w, models.NewErrorResponse(code, data))
}

// WriteCustomErrorResponse 写入自定义错误消息的响应
func WriteCustomErrorResponse(w http.ResponseWriter, code int, message string, data interface{}) {
	WriteFormattedJSON(w, models.NewCustomErrorResponse(code, message, data))
}

// HandleServiceError 处理服务层错误的通用函数
func HandleServiceError(w http.ResponseWriter, err error, noDataCode int) {
	if IsSQLNoRowsError(err) {
		WriteErrorResponse(w, noDataCode, map[string]interface{}{})
	} else {
		WriteCustomErrorResponse(w, models.CodeServerError, err.Error(), map[string]interface{}{})
	}
}

// ValidateUserID 验证用户ID参数
func ValidateUserID(w http.ResponseWriter, uid string) bool {
	if uid == "" {
		WriteErrorResponse(w, models.CodeMissingParams, map[string]interface{}{
			"param": "uid",
		})
		return false
	}
	return true
}
