package handlers

import "github.com/gofiber/fiber/v3"

// ErrDatasetNotFound is returned when no configuration document matches the identifier
var ErrDatasetNotFound = fiber.NewError(fiber.StatusNotFound, "dataset not found")

// ErrDatasetUnreadable is returned when a configuration document cannot be decoded
var ErrDatasetUnreadable = fiber.NewError(fiber.StatusInternalServerError, "dataset configuration is unreadable")
