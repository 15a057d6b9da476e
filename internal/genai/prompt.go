package genai

import (
	"fmt"
	"strings"

	"github.com/mediconsult/internal/assembler"
)

const basePrompt = "你是一位专业、谨慎的医疗咨询助手。" +
	"回答要通俗易懂，避免下确定性诊断；" +
	"如症状可能危急，请明确建议用户尽快就医。"

// buildSystemPrompt renders the system message for a generation request
// based on the assembled context bundle.
func buildSystemPrompt(bundle assembler.Bundle) string {
	var prompt strings.Builder
	prompt.WriteString(basePrompt)

	switch b := bundle.(type) {
	case assembler.TriageBundle:
		prompt.WriteString("\n\n你的任务是分诊：根据用户描述的症状，从下面的科室和医生列表中推荐最合适的就诊科室，并说明理由。\n")
		prompt.WriteString("\n可选科室：\n")
		for _, d := range b.Departments {
			if d.Description != "" {
				prompt.WriteString(fmt.Sprintf("- %s（%s）：%s\n", d.Name, d.ID, d.Description))
			} else {
				prompt.WriteString(fmt.Sprintf("- %s（%s）\n", d.Name, d.ID))
			}
		}
		if len(b.Doctors) > 0 {
			prompt.WriteString("\n可选医生：\n")
			for _, doc := range b.Doctors {
				prompt.WriteString(fmt.Sprintf("- %s，科室 %s", doc.Name, doc.DepartmentID))
				if doc.Title != "" {
					prompt.WriteString("，" + doc.Title)
				}
				prompt.WriteString("\n")
			}
		}

	case assembler.ReportBundle:
		prompt.WriteString("\n\n你的任务是解读检查报告：用平实的语言解释以下报告内容中的关键指标，指出异常项并给出复诊建议。\n")
		prompt.WriteString("\n报告内容：\n")
		prompt.WriteString(b.Text)
		prompt.WriteString("\n")

	default:
		prompt.WriteString("\n\n你的任务是预问诊：耐心了解用户的症状、持续时间和既往史，帮助他们整理就诊信息。")
	}

	return prompt.String()
}
