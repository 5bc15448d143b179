package model

import (
	baseModel "farm_community/pkg/model"
)

// 角色
const (
	RoleFarmer = "farmer"
	RoleExpert = "expert"
	RoleAdmin  = "admin"
)

// Profile 用户公开资料，points 为声望积分
type Profile struct {
	baseModel.BaseModel
	DisplayName string `gorm:"size:64" json:"displayName"`
	Role        string `gorm:"size:16;default:'farmer'" json:"role"`
	AvatarURL   string `json:"avatarUrl"`
	Points      int64  `gorm:"default:0" json:"points"`
}

// AuthorInfo 评论树中展示的作者信息
type AuthorInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

func (a AuthorInfo) IsExpert() bool { return a.Role == RoleExpert }

// Info 转换为展示信息
func (p *Profile) Info() AuthorInfo {
	return AuthorInfo{ID: p.ID, DisplayName: p.DisplayName, Role: p.Role, AvatarURL: p.AvatarURL}
}

// UnknownAuthor 资料缺失时的占位信息
func UnknownAuthor(id string) AuthorInfo {
	return AuthorInfo{ID: id, DisplayName: "Unknown farmer", Role: RoleFarmer}
}
