package model

// Principal — вызывающий пользователь, извлечённый из bearer-токена.
// Пустой ID означает анонимный запрос.
type Principal struct {
	UserID string
	Name   string
	Email  string
	Image  string
}

func (p Principal) Anonymous() bool { return p.UserID == "" }

// ToUser возвращает профиль для upsert в таблицу users.
func (p Principal) ToUser() User {
	return User{ID: p.UserID, Name: p.Name, Email: p.Email, Image: p.Image}
}
