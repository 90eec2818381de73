package book

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// 字段长度限制
const (
	MaxTitleLen  = 200
	MaxAuthorLen = 75
)

// Book 图书实体(聚合根)
// 设计说明:
// 1. Title和ISBN都是业务唯一键(数据库唯一索引兜底)
// 2. 写入前统一规范化:书名/作者按单词首字母大写,ISBN去掉连字符和空格
// 3. 馆藏数量不在Book上,由inventory.Record一对一维护
type Book struct {
	ID            uint
	Title         string
	Author        string
	ISBN          string
	PublishedDate *time.Time // 可为空,不能晚于今天
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewBook 创建图书(工厂方法),返回规范化后的实体
func NewBook(title, author, isbn string, published *time.Time, now time.Time) (*Book, error) {
	b := &Book{CreatedAt: now, UpdatedAt: now}
	if err := b.apply(title, author, isbn, published, now); err != nil {
		return nil, err
	}
	return b, nil
}

// Revise 修改图书信息,空字符串表示不修改
// clearPublished为true时清空出版日期
func (b *Book) Revise(title, author, isbn string, published *time.Time, clearPublished bool, now time.Time) error {
	if title == "" {
		title = b.Title
	}
	if author == "" {
		author = b.Author
	}
	if isbn == "" {
		isbn = b.ISBN
	}
	if published == nil && !clearPublished {
		published = b.PublishedDate
	}

	next := *b
	if err := next.apply(title, author, isbn, published, now); err != nil {
		return err
	}
	next.UpdatedAt = now
	*b = next
	return nil
}

func (b *Book) apply(title, author, isbn string, published *time.Time, now time.Time) error {
	title = TitleCase(strings.TrimSpace(title))
	if title == "" || utf8.RuneCountInString(title) > MaxTitleLen {
		return ErrInvalidTitle
	}

	author = TitleCase(strings.TrimSpace(author))
	if author == "" || utf8.RuneCountInString(author) > MaxAuthorLen {
		return ErrInvalidAuthor
	}

	isbn = NormalizeISBN(isbn)
	if !IsValidISBN(isbn) {
		return ErrInvalidISBN
	}

	if published != nil {
		d := truncateToDay(*published)
		if d.After(truncateToDay(now)) {
			return ErrPublishedInFuture
		}
		published = &d
	}

	b.Title = title
	b.Author = author
	b.ISBN = isbn
	b.PublishedDate = published
	return nil
}

// TitleCase 每个单词首字母大写,其余字母小写
// 单词边界为任意非字母字符("o'neil" -> "O'Neil")
func TitleCase(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))

	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				sb.WriteRune(unicode.ToLower(r))
			} else {
				sb.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		sb.WriteRune(r)
		prevLetter = false
	}
	return sb.String()
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
