package domain

import "time"

// UserModel is the GORM model for the users table.
type UserModel struct {
	ID           uint      `gorm:"primaryKey"`
	Username     string    `gorm:"type:varchar(120);uniqueIndex;not null"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string    `gorm:"type:varchar(255);not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

func (m *UserModel) ToDomain() *User {
	return &User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
	}
}

func UserToModel(u *User) *UserModel {
	return &UserModel{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}

// ProductModel is the GORM model for the products table.
type ProductModel struct {
	ID          uint       `gorm:"primaryKey"`
	Title       string     `gorm:"type:varchar(200);not null"`
	Price       float64    `gorm:"not null;default:0"`
	Description string     `gorm:"type:text;not null"`
	ImageURL    string     `gorm:"type:text;not null"`
	OwnerID     *uint      `gorm:"index"`
	Owner       *UserModel `gorm:"foreignKey:OwnerID;constraint:OnDelete:SET NULL"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index"`
}

func (ProductModel) TableName() string {
	return "products"
}

func (m *ProductModel) ToDomain() *Product {
	return &Product{
		ID:          m.ID,
		Title:       m.Title,
		Price:       m.Price,
		Description: m.Description,
		ImageURL:    m.ImageURL,
		OwnerID:     m.OwnerID,
		CreatedAt:   m.CreatedAt,
	}
}

func ProductToModel(p *Product) *ProductModel {
	return &ProductModel{
		ID:          p.ID,
		Title:       p.Title,
		Price:       p.Price,
		Description: p.Description,
		ImageURL:    p.ImageURL,
		OwnerID:     p.OwnerID,
		CreatedAt:   p.CreatedAt,
	}
}

// MessageModel is the GORM model for the messages table.
type MessageModel struct {
	ID        uint      `gorm:"primaryKey"`
	Room      string    `gorm:"type:varchar(120);not null;index"`
	Sender    string    `gorm:"type:varchar(120);not null"`
	Text      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (MessageModel) TableName() string {
	return "messages"
}

func (m *MessageModel) ToDomain() *Message {
	return &Message{
		ID:        m.ID,
		Room:      m.Room,
		Sender:    m.Sender,
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
	}
}

func MessageToModel(msg *Message) *MessageModel {
	return &MessageModel{
		ID:        msg.ID,
		Room:      msg.Room,
		Sender:    msg.Sender,
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt,
	}
}

// Models lists every model for auto-migration.
func Models() []interface{} {
	return []interface{}{&UserModel{}, &ProductModel{}, &MessageModel{}}
}
