// Package language maps between ISO 639-1/639-2 codes and human-readable
// names for the languages the translator deals with, and validates language
// lists coming from settings.
package language
