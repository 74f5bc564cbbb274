package clb

import "errors"

// ErrNoTable is returned when an engine is built without a conversion table.
var ErrNoTable = errors.New("clb: conversion table not loaded")

// ErrInvalidTable marks a table that failed Validate.
var ErrInvalidTable = errors.New("clb: conversion table invalid")
