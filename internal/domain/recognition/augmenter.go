package recognition

import "strings"

// FilterNames 过滤人物名单：去掉空名与未命名占位，保持顺序，不去重。
func FilterNames(people []Person) []string {
	names := make([]string, 0, len(people))
	for _, p := range people {
		if p.PersonName == "" || p.PersonName == UnnamedPerson {
			continue
		}
		names = append(names, p.PersonName)
	}
	return names
}

// AugmentQuestion 将识别到的人物名字注入问题文本。
// 原问题始终是结果的前缀；问题没有涉及"人"时补充更强的提及指令，
// 已经在问人物的只附上名单。
func AugmentQuestion(question string, names []string) string {
	if len(names) == 0 {
		return question
	}
	joined := strings.Join(names, "、")

	if strings.Contains(question, "人物") || strings.Contains(question, "人") {
		return question + "\n\n[已识别的人物：" + joined + "]"
	}
	return question +
		"\n\n注意：这张图片中识别到了以下人物：" + joined +
		"。请在你的回答中明确提及这些人物，并结合他们来描述图片内容。"
}

// AugmentAnswer 如果回答中没有提到任何识别出的人物，在结尾补充名单。
// 已提及任一人物名（不区分大小写）时原样返回，保证幂等。
func AugmentAnswer(answer string, names []string) string {
	if len(names) == 0 {
		return answer
	}

	answerLower := strings.ToLower(answer)
	for _, name := range names {
		if strings.Contains(answerLower, strings.ToLower(name)) {
			return answer
		}
	}
	return answer + "\n\n[识别到的人物：" + strings.Join(names, "、") + "]"
}
