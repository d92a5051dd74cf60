package recognition

import "fmt"

// UnnamedPerson 资产服务对尚未命名人物返回的占位名称
const UnnamedPerson = "未命名"

// 识别结果提示语
const (
	MsgDisabled         = "人脸识别未启用"
	MsgNoFaceDetected   = "未检测到人脸，跳过识别"
	MsgUploadFailed     = "图片上传失败"
	MsgAssetFetchFailed = "无法获取资产详情"
	MsgNoPeopleDetected = "未检测到人物"
)

// MsgPeopleRecognized 识别成功提示语
func MsgPeopleRecognized(count int) string {
	return fmt.Sprintf("成功识别%d个人物", count)
}

// AssetPerson 资产上识别出的人物
type AssetPerson struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AssetFace 资产上检测到的人脸
type AssetFace struct {
	ID       string `json:"id"`
	PersonID string `json:"personId,omitempty"`
}

// Asset 资产详情（只保留识别链路需要的字段）
type Asset struct {
	ID     string        `json:"id"`
	People []AssetPerson `json:"people"`
	Faces  []AssetFace   `json:"faces"`
}

// Processed 判断资产的人脸识别是否已产出结果
func (a *Asset) Processed() bool {
	return a != nil && (len(a.Faces) > 0 || len(a.People) > 0)
}

// PersonPhoto 人物的历史照片条目
type PersonPhoto struct {
	ID               string `json:"id"`
	OriginalFileName string `json:"originalFileName,omitempty"`
}

// Person 识别出的人物及其历史照片
type Person struct {
	PersonID   string        `json:"person_id"`
	PersonName string        `json:"person_name"`
	Photos     []PersonPhoto `json:"photos,omitempty"`
}

// Result 一次识别编排的统一结果，永不携带error：失败也是一种结果
type Result struct {
	Success bool     `json:"success"`
	AssetID string   `json:"asset_id,omitempty"`
	People  []Person `json:"people"`
	Message string   `json:"message,omitempty"`
}
