package sumfile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/mr-tron/base58"
)

type hashedEntity struct {
	hash   []byte
	entity string
	algo   string
}

// Sumfile is the checksum database kept under the instance directory. One
// line per artifact: "<algo>:<base58 hash> <entity>".
type Sumfile struct {
	entities []hashedEntity
}

func LoadFile(path string) (*Sumfile, error) {
	var sf Sumfile

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &sf, nil
		}

		return nil, err
	}

	defer f.Close()

	err = sf.Load(f)
	if err != nil {
		return nil, err
	}

	return &sf, nil
}

func (s *Sumfile) Load(r io.Reader) error {
	br := bufio.NewReader(r)

	for {
		line, err := br.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				break
			}

			return err
		}

		colon := bytes.IndexByte(line, ':')
		if colon == -1 {
			continue
		}

		space := bytes.IndexByte(line, ' ')
		if space == -1 {
			continue
		}

		algo := string(line[:colon])

		hash := string(line[colon+1 : space])

		entity := string(bytes.TrimSpace(line[space+1:]))

		b, err := base58.Decode(hash)
		if err != nil {
			return err
		}

		var he hashedEntity

		he.entity = entity
		he.algo = algo
		he.hash = b

		s.entities = append(s.entities, he)
	}

	return nil
}

// Add records a sum for entity, replacing any previous record.
func (s *Sumfile) Add(entity, algo string, h []byte) (string, error) {
	for i, he := range s.entities {
		if he.entity == entity {
			s.entities = append(s.entities[:i], s.entities[i+1:]...)
			break
		}
	}

	s.entities = append(s.entities, hashedEntity{
		algo:   algo,
		hash:   h,
		entity: entity,
	})

	sort.Slice(s.entities, func(i, j int) bool {
		return s.entities[i].entity < s.entities[j].entity
	})

	return algo + ":" + base58.Encode(h), nil
}

func (s *Sumfile) Remove(entity string) bool {
	for i, he := range s.entities {
		if he.entity == entity {
			s.entities = append(s.entities[:i], s.entities[i+1:]...)
			return true
		}
	}

	return false
}

func (s *Sumfile) Save(w io.Writer) error {
	for _, he := range s.entities {
		sh := base58.Encode(he.hash)
		fmt.Fprintf(w, "%s:%s %s\n", he.algo, sh, he.entity)
	}

	return nil
}

func (s *Sumfile) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	defer f.Close()

	return s.Save(f)
}

func (s *Sumfile) Lookup(entity string) (string, []byte, bool) {
	idx := sort.Search(len(s.entities), func(i int) bool {
		return s.entities[i].entity >= entity
	})

	if idx == len(s.entities) {
		return "", nil, false
	}

	if s.entities[idx].entity == entity {
		return s.entities[idx].algo, s.entities[idx].hash, true
	}

	return "", nil, false
}
