package filter

type IGenerator interface {
	Initialize(string) error
	Finalize(*Filter) error
	Push([]byte)
	Payload() []byte
	WithCriterion(Criterion) error
	WithField(string) error
	SetOption(string, interface{}) error
	GetValues() []interface{}
	Reset()
}

// Holds the rendered payload for generator implementations.
type Generator struct {
	payload []byte
}

func Render(generator IGenerator, collectionName string, filter *Filter) ([]byte, error) {
	if err := generator.Initialize(collectionName); err != nil {
		return nil, err
	}

	for key, value := range filter.Options {
		if err := generator.SetOption(key, value); err != nil {
			return nil, err
		}
	}

	for _, fieldName := range filter.Fields {
		if err := generator.WithField(fieldName); err != nil {
			return nil, err
		}
	}

	if !filter.IsMatchAll() {
		for _, criterion := range filter.Criteria {
			if err := generator.WithCriterion(criterion); err != nil {
				return nil, err
			}
		}
	}

	if err := generator.Finalize(filter); err != nil {
		return nil, err
	}

	return generator.Payload(), nil
}

func (self *Generator) Push(data []byte) {
	if self.payload == nil {
		self.payload = make([]byte, 0)
	}

	self.payload = append(self.payload, data...)
}

func (self *Generator) Reset() {
	self.payload = nil
}

func (self *Generator) Payload() []byte {
	return self.payload
}
