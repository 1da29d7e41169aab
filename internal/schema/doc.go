// Package schema defines the records anki-vibe keeps on disk.
//
// # Notes file
//
// Each collection folder holds notes.yaml, an ordered list of notes:
//
//	- id: 1700000000000
//	  deck: Vocab
//	  tags: [new]
//	  fields:
//	    Front: Hello
//	    Back: |-
//	      Xin chào
//	- deck: Vocab          # no id yet: created on the next sync
//	  fields:
//	    Front: Goodbye
//	    Back: Tạm biệt
//
// An id is present only once Anki has accepted the note. Its presence is
// what routes a note to update instead of create.
//
// # Collection config
//
// config.yaml names the Anki note type and maps template file stems to
// Anki template names:
//
//	anki_model_name: Basic
//	description: Auto-generated config for model 'Basic'
//	templates:
//	  card_1: Card 1
package schema
