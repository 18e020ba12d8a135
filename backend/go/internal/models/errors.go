package models

import "errors"

var (
	// ErrNotFound 表示资源不存在或不属于当前用户，两种情况不做区分。
	ErrNotFound = errors.New("资源不存在")
	// ErrInvalidID 表示ID格式非法。
	ErrInvalidID = errors.New("ID格式非法")
	// ErrEmbedding 表示向量生成失败。
	ErrEmbedding = errors.New("生成向量失败")
	// ErrMaxIterations 表示推理循环超过了最大迭代次数。
	ErrMaxIterations = errors.New("推理循环超过最大迭代次数")
	// ErrLocked 表示同一对话线程上已有轮次在执行。
	ErrLocked = errors.New("对话线程正被占用")
)
