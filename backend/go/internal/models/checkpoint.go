package models

import "time"

// Checkpoint 是某个对话线程推理循环的可恢复状态。
type Checkpoint struct {
	ThreadID  string    `json:"threadId"`
	OwnerID   string    `json:"ownerId"`
	Contents  []Content `json:"contents"`
	Step      int       `json:"step"`
	UpdatedAt time.Time `json:"updatedAt"`
}
